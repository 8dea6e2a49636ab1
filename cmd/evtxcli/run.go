package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/NickSmet/ts-evtx/catalog/sqlitecatalog"
	"github.com/NickSmet/ts-evtx/evtx"
)

func runRoot() error {
	if flagInput == "" {
		return errors.New("--input is required")
	}

	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	var closer io.Closer
	if flagWithMsgs {
		if flagMessageDB == "" {
			return errors.New("--with-messages requires --messagedb")
		}
		provider, err := sqlitecatalog.Open(flagMessageDB, flagLocale)
		if err != nil {
			return err
		}
		closer = provider
		cfg.MessageProvider = provider
	}
	if closer != nil {
		defer closer.Close()
	}

	reader, err := evtx.Open(flagInput, cfg)
	if err != nil {
		return err
	}

	w := os.Stdout
	if flagOut != "" {
		f, err := os.Create(flagOut)
		if err != nil {
			return wrapIOErr(err, "open --out")
		}
		defer f.Close()
		return streamTo(f, reader)
	}
	return streamTo(w, reader)
}

func buildConfig() (evtx.Config, error) {
	cfg := evtx.Config{
		Start:    flagStart,
		Limit:    flagLimit,
		Last:     flagLast,
		Provider: flagProvider,
	}

	if flagWithMsgs {
		cfg.IncludeDataItems = evtx.DataItemsFull
	} else {
		cfg.IncludeDataItems = evtx.DataItemsSummary
	}

	for _, s := range flagEventIDs {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return cfg, errors.Wrapf(err, "--event-id %q is not a number", s)
		}
		cfg.EventIDs = append(cfg.EventIDs, uint32(n))
	}

	if flagSince != "" {
		t, err := time.Parse(time.RFC3339, flagSince)
		if err != nil {
			return cfg, errors.Wrapf(err, "--since %q is not RFC3339", flagSince)
		}
		cfg.Since = &t
	}
	if flagUntil != "" {
		t, err := time.Parse(time.RFC3339, flagUntil)
		if err != nil {
			return cfg, errors.Wrapf(err, "--until %q is not RFC3339", flagUntil)
		}
		cfg.Until = &t
	}

	switch flagDiagnostics {
	case "", "none":
		cfg.IncludeDiagnostics = evtx.DiagnosticsNone
	case "basic":
		cfg.IncludeDiagnostics = evtx.DiagnosticsBasic
	case "full":
		cfg.IncludeDiagnostics = evtx.DiagnosticsFull
	default:
		return cfg, errors.Errorf("--diagnostics %q must be none, basic, or full", flagDiagnostics)
	}

	switch flagStrategy {
	case "", "none":
		cfg.MessageStrategy = evtx.StrategyNone
	case "best-effort":
		cfg.MessageStrategy = evtx.StrategyBestEffort
	case "required":
		cfg.MessageStrategy = evtx.StrategyRequired
	default:
		return cfg, errors.Errorf("--message-strategy %q must be none, best-effort, or required", flagStrategy)
	}
	if flagWithMsgs && cfg.MessageStrategy == evtx.StrategyNone {
		cfg.MessageStrategy = evtx.StrategyBestEffort
	}
	cfg.EnableAliasLookup = flagWithMsgs
	cfg.DefaultLocale = flagLocale

	return cfg, nil
}

func streamTo(w io.Writer, reader *evtx.Reader) error {
	ctx := context.Background()
	events, err := reader.Events(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	if flagPretty {
		enc.SetIndent("", "  ")
	}
	for item := range events {
		if item.Err != nil {
			return item.Err
		}
		if err := enc.Encode(toJSONRecord(item.Event)); err != nil {
			return wrapIOErr(err, "write output")
		}
	}
	return nil
}

// jsonRecord is the CLI's own stable output shape, decoupled from
// evtx.ResolvedEvent's Go-idiomatic field layout so the field names and
// nesting it prints don't shift every time that struct gains a field.
type jsonRecord struct {
	RecordID  uint64      `json:"recordId"`
	Timestamp time.Time   `json:"timestamp"`
	EventID   uint32      `json:"eventId"`
	Level     string      `json:"level"`
	Provider  string      `json:"provider"`
	Channel   string      `json:"channel"`
	Computer  string      `json:"computer"`
	Message   string      `json:"message,omitempty"`
	RawXML    string      `json:"rawXml,omitempty"`
	EventData interface{} `json:"eventData,omitempty"`
}

func toJSONRecord(ev *evtx.ResolvedEvent) jsonRecord {
	rec := jsonRecord{
		RecordID:  ev.ID,
		Timestamp: ev.Timestamp,
		EventID:   ev.EventID,
		Level:     ev.LevelName,
		Provider:  ev.Provider,
		Channel:   ev.Channel,
		Computer:  ev.Computer,
		RawXML:    ev.Raw.XML,
	}
	if ev.Data.Ordered != nil {
		rec.EventData = ev.Data.Ordered
	}
	if ev.MessageResolution != nil && ev.MessageResolution.Final != nil {
		rec.Message = ev.MessageResolution.Final.Message
	}
	return rec
}

// ioErr marks a non-evtx failure (opening --out, writing to it) as an I/O
// exit-code case; exitCodeFor checks for this type directly since os
// errors don't carry an evtx.Kind.
type ioErr struct {
	op  string
	err error
}

func (e *ioErr) Error() string { return fmt.Sprintf("%s: %v", e.op, e.err) }
func (e *ioErr) Unwrap() error { return e.err }

func wrapIOErr(err error, op string) error {
	return &ioErr{op: op, err: err}
}
