// Package catalog ships reference CatalogProvider implementations: an
// in-memory map for tests and small deployments, a chaining collaborator,
// and (in sqlitecatalog) a database/sql-backed provider.
package catalog

import (
	"context"
	"sync"

	"github.com/NickSmet/ts-evtx/evtx"
)

type key struct {
	provider string
	eventID  uint32
	locale   string
}

// Memory is a map-backed evtx.CatalogProvider. It holds every candidate
// template for a (provider, eventId, locale) key, in insertion order, so
// Get returns the first and GetCandidates returns all of them.
type Memory struct {
	mu   sync.RWMutex
	data map[key][]string
	info evtx.CatalogInfo
}

// NewMemory builds an empty provider. source/locale populate Info.
func NewMemory(source, locale string) *Memory {
	return &Memory{
		data: make(map[key][]string),
		info: evtx.CatalogInfo{Source: source, Locale: locale},
	}
}

// Add appends one or more templates for the given key, in order. Later
// calls with the same key add further candidates rather than overwriting.
func (m *Memory) Add(provider string, eventID uint32, locale string, templates ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{provider, eventID, locale}
	if _, ok := m.data[k]; !ok {
		m.info.EntryCount++
	}
	m.data[k] = append(m.data[k], templates...)
}

func (m *Memory) Get(ctx context.Context, provider string, eventID uint32, locale string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.data[key{provider, eventID, locale}]
	if len(list) == 0 {
		return "", false, nil
	}
	return list[0], true, nil
}

func (m *Memory) GetCandidates(ctx context.Context, provider string, eventID uint32, locale string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.data[key{provider, eventID, locale}]
	out := make([]string, len(list))
	copy(out, list)
	return out, nil
}

func (m *Memory) GetBatch(ctx context.Context, reqs []evtx.BatchRequest) ([]string, []bool, error) {
	texts := make([]string, len(reqs))
	oks := make([]bool, len(reqs))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, r := range reqs {
		list := m.data[key{r.Provider, r.EventID, r.Locale}]
		if len(list) > 0 {
			texts[i] = list[0]
			oks[i] = true
		}
	}
	return texts, oks, nil
}

func (m *Memory) Info(ctx context.Context) (evtx.CatalogInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := m.info
	return info, nil
}
