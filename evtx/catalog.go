package evtx

import "context"

// CatalogProvider is the resolver's sole required collaborator (§6): a
// key/value lookup from (provider, eventId, locale) to a message template.
// Implementations live outside this package; catalog/ ships reference ones.
type CatalogProvider interface {
	Get(ctx context.Context, provider string, eventID uint32, locale string) (string, bool, error)
}

// CandidateProvider is an optional capability: providers that can return
// more than one plausible template (e.g. across locales or catalog
// generations) implement this so the resolver can score among them.
type CandidateProvider interface {
	GetCandidates(ctx context.Context, provider string, eventID uint32, locale string) ([]string, error)
}

// BatchRequest is one lookup key for BatchProvider.GetBatch.
type BatchRequest struct {
	Provider string
	EventID  uint32
	Locale   string
}

// BatchProvider is an optional capability letting a provider amortize many
// lookups (e.g. one SQL query instead of N).
type BatchProvider interface {
	GetBatch(ctx context.Context, reqs []BatchRequest) ([]string, []bool, error)
}

// CatalogInfo is the optional self-description a provider may expose.
type CatalogInfo struct {
	Source           string
	Locale           string
	SupportedLocales []string
	EntryCount       int
	LastUpdated      string
}

// InfoProvider is an optional capability for diagnostics/CLI output.
type InfoProvider interface {
	Info(ctx context.Context) (CatalogInfo, error)
}

// CloserProvider is an optional capability for providers holding a resource
// (an open file, a DB handle) that must be released.
type CloserProvider interface {
	Close() error
}
