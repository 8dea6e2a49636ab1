package evtx

import (
	"context"
	"os"
	"time"
)

// maxFileSizeDefault rejects files above 100 MiB by default (§4, Limits).
const maxFileSizeDefault = 100 * 1024 * 1024

// Config is the public configuration record accepted by Open (§6).
type Config struct {
	IncludeRawXML      bool
	IncludeDataItems   IncludeDataItems
	IncludeDiagnostics DiagnosticsLevel
	EnableAliasLookup  bool
	CandidateLimit     int
	MessageProvider    CatalogProvider
	DefaultLocale      string
	MessageStrategy    MessageStrategy

	Start int
	Limit int
	Last  int

	EventIDs []uint32
	Provider string
	Since    *time.Time
	Until    *time.Time

	MaxFileSize int64
}

// Reader streams ResolvedEvents out of one EVTX file. It holds no open
// file handle between calls: per §5, iteration is lazy and restartable,
// not resumable mid-iteration, so each Events/Collect call reopens the
// path and reparses from the start.
type Reader struct {
	path string
	cfg  Config
}

// Open validates the path is readable and within the configured size
// limit, returning a Reader that has not yet touched file contents beyond
// a stat. The real parse happens on Events/Collect.
func Open(path string, cfg Config) (*Reader, error) {
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = maxFileSizeDefault
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, wrapf(KindIO, err, "stat %s", path)
	}
	if info.Size() > cfg.MaxFileSize {
		return nil, newErr(KindIO, "file %s is %d bytes, exceeds max_file_size %d", path, info.Size(), cfg.MaxFileSize)
	}
	return &Reader{path: path, cfg: cfg}, nil
}

// EventOrError is one item of the streaming result: exactly one of Event
// or Err is set.
type EventOrError struct {
	Event *ResolvedEvent
	Err   error
}

// Events returns a channel of EventOrError in file order. The channel is
// closed once the file is exhausted, an IOError/InvalidHeader occurs, or
// ctx is cancelled. Per §5, a cancellation token may be checked only
// between records.
func (r *Reader) Events(ctx context.Context) (<-chan EventOrError, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, wrapf(KindIO, err, "read %s", r.path)
	}
	fh, err := ParseFileHeader(NewCursor(data))
	if err != nil {
		return nil, err
	}
	if err := fh.Verify(); err != nil {
		return nil, err
	}

	out := make(chan EventOrError, 32)
	go r.run(ctx, fh, out)
	return out, nil
}

func (r *Reader) run(ctx context.Context, fh *FileHeader, out chan<- EventOrError) {
	defer close(out)

	var resolver *MessageResolver
	if r.cfg.MessageStrategy != StrategyNone && r.cfg.MessageProvider != nil {
		resolver = NewMessageResolver(r.cfg.MessageProvider, ResolverConfig{
			EnableAliasLookup: r.cfg.EnableAliasLookup,
			CandidateLimit:    r.cfg.CandidateLimit,
			DefaultLocale:     r.cfg.DefaultLocale,
			Diagnostics:       r.cfg.IncludeDiagnostics,
			Strategy:          r.cfg.MessageStrategy,
		})
	}
	assembler := NewEventAssembler(resolver, r.cfg.IncludeRawXML, r.cfg.IncludeDataItems)

	chunks, err := fh.Chunks(false)
	if err != nil {
		out <- EventOrError{Err: err}
		return
	}

	skip, limit := r.resolvePagination(fh)
	emitted := 0
	index := 0

	for _, ch := range chunks {
		if err := ch.Verify(); err != nil {
			warnf("skipping invalid chunk", map[string]interface{}{"chunk": ch.Offset, "error": err.Error()})
			continue
		}
		stop := false
		err := ch.IterateRecords(func(rec *Record) (bool, error) {
			select {
			case <-ctx.Done():
				stop = true
				return false, nil
			default:
			}

			if !r.passesTimeFilter(rec) {
				return true, nil
			}

			root, subs, err := rec.Root()
			if err != nil {
				out <- EventOrError{Err: wrapf(KindOutOfBounds, err, "render record %d", rec.RecordNumber)}
				return true, nil
			}
			ev := assembler.newEventWithSystemFields(rec, root, subs)
			if !r.passesHeaderFilter(ev) {
				return true, nil
			}

			index++
			if index <= skip {
				return true, nil
			}
			if limit > 0 && emitted >= limit {
				stop = true
				return false, nil
			}

			ev, err = assembler.finishAssemble(ctx, rec, root, subs, ev)
			if err != nil {
				out <- EventOrError{Err: err}
				if IsKind(err, KindMessageRequiredMissing) {
					stop = true
					return false, nil
				}
				return true, nil
			}
			out <- EventOrError{Event: ev}
			emitted++
			return true, nil
		})
		if err != nil {
			out <- EventOrError{Err: err}
			return
		}
		if stop {
			return
		}
	}
}

// passesTimeFilter applies the since/until window from the record header
// (§4.11 step 5), cheapest because it needs no BXML parse at all.
func (r *Reader) passesTimeFilter(rec *Record) bool {
	if r.cfg.Since != nil && rec.TimestampAsDate().Before(*r.cfg.Since) {
		return false
	}
	if r.cfg.Until != nil && rec.TimestampAsDate().After(*r.cfg.Until) {
		return false
	}
	return true
}

// passesHeaderFilter applies eventId/provider pre-filters (§4.11 step 5)
// once system fields are known, before layout extraction, rendering, or
// message resolution run.
func (r *Reader) passesHeaderFilter(ev *ResolvedEvent) bool {
	if len(r.cfg.EventIDs) > 0 {
		match := false
		for _, id := range r.cfg.EventIDs {
			if id == ev.EventID {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	if r.cfg.Provider != "" && !containsFold(ev.Provider, r.cfg.Provider) {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	h, n := []rune(haystack), []rune(needle)
	if len(n) == 0 {
		return true
	}
	toLower := func(rs []rune) []rune {
		out := make([]rune, len(rs))
		for i, r := range rs {
			if r >= 'A' && r <= 'Z' {
				r = r - 'A' + 'a'
			}
			out[i] = r
		}
		return out
	}
	h, n = toLower(h), toLower(n)
	for i := 0; i+len(n) <= len(h); i++ {
		if string(h[i:i+len(n)]) == string(n) {
			return true
		}
	}
	return false
}

// resolvePagination turns Start/Limit/Last into a (skip, limit) pair.
// last N is a skip-to-start derived from next_record_number-1 (§5): fh's
// NextRecordID-1 is the number of the last record written, so last N skips
// the first NextRecordID-1-N records (clamped at 0) and emits up to N.
func (r *Reader) resolvePagination(fh *FileHeader) (skip, limit int) {
	if r.cfg.Last > 0 {
		skip = int(fh.NextRecordID) - 1 - r.cfg.Last
		if skip < 0 {
			skip = 0
		}
		return skip, r.cfg.Last
	}
	return r.cfg.Start, r.cfg.Limit
}

// Collect runs Events to completion and returns the ordered result,
// stopping at the first error.
func (r *Reader) Collect(ctx context.Context) ([]ResolvedEvent, error) {
	ch, err := r.Events(ctx)
	if err != nil {
		return nil, err
	}
	var out []ResolvedEvent
	for item := range ch {
		if item.Err != nil {
			return out, item.Err
		}
		out = append(out, *item.Event)
	}
	return out, nil
}
