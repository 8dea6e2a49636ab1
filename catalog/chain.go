package catalog

import (
	"context"

	"github.com/NickSmet/ts-evtx/evtx"
)

// Chain tries each provider in order and returns the first non-empty
// result (§6: "Providers may be chained; a chain returns the first
// non-empty result."). GetCandidates concatenates every provider's
// candidates instead of stopping at the first hit, so the resolver can
// still score across the whole chain.
type Chain struct {
	providers []evtx.CatalogProvider
}

// NewChain builds a chain over providers, tried in the given order.
func NewChain(providers ...evtx.CatalogProvider) *Chain {
	return &Chain{providers: providers}
}

func (c *Chain) Get(ctx context.Context, provider string, eventID uint32, locale string) (string, bool, error) {
	for _, p := range c.providers {
		text, ok, err := p.Get(ctx, provider, eventID, locale)
		if err != nil {
			return "", false, err
		}
		if ok {
			return text, true, nil
		}
	}
	return "", false, nil
}

func (c *Chain) GetCandidates(ctx context.Context, provider string, eventID uint32, locale string) ([]string, error) {
	var out []string
	for _, p := range c.providers {
		if cp, ok := p.(evtx.CandidateProvider); ok {
			cands, err := cp.GetCandidates(ctx, provider, eventID, locale)
			if err != nil {
				return nil, err
			}
			out = append(out, cands...)
			continue
		}
		text, ok2, err := p.Get(ctx, provider, eventID, locale)
		if err != nil {
			return nil, err
		}
		if ok2 {
			out = append(out, text)
		}
	}
	return out, nil
}

// Info reports the first provider in the chain that implements
// InfoProvider, since a chain has no single coherent source/locale.
func (c *Chain) Info(ctx context.Context) (evtx.CatalogInfo, error) {
	for _, p := range c.providers {
		if ip, ok := p.(evtx.InfoProvider); ok {
			return ip.Info(ctx)
		}
	}
	return evtx.CatalogInfo{Source: "chain"}, nil
}

// Close closes every chained provider that implements CloserProvider,
// collecting the first error but still attempting the rest.
func (c *Chain) Close() error {
	var first error
	for _, p := range c.providers {
		if cp, ok := p.(evtx.CloserProvider); ok {
			if err := cp.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
