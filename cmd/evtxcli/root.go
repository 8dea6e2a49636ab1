package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/NickSmet/ts-evtx/evtx"
)

// exitUsage, exitIO, and exitFormat are the CLI's three non-zero exit
// codes (§6's CLI table): 1 usage error, 2 I/O error, 3 format error.
const (
	exitOK     = 0
	exitUsage  = 1
	exitIO     = 2
	exitFormat = 3
)

var (
	flagLast        int
	flagStart       int
	flagLimit       int
	flagSince       string
	flagUntil       string
	flagProvider    string
	flagEventIDs    []string
	flagWithMsgs    bool
	flagOut         string
	flagPretty      bool
	flagMessageDB   string
	flagLocale      string
	flagDiagnostics string
	flagStrategy    string
)

var rootCmd = &cobra.Command{
	Use:   "evtxcli --input FILE",
	Short: "Decode Windows EVTX event logs to JSON",
	Long: `evtxcli parses a Windows EVTX event log file and emits one JSON object
per record to stdout (or --out), in file order. It is a thin wrapper over the
evtx package's streaming reader; it holds no parsing logic of its own.`,
	Version:      "0.1.0",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRoot()
	},
}

var flagInput string

func init() {
	rootCmd.Flags().StringVar(&flagInput, "input", "", "Path to the .evtx file (required)")
	rootCmd.Flags().IntVar(&flagLast, "last", 0, "Emit only the last N records")
	rootCmd.Flags().IntVar(&flagStart, "start", 0, "Skip this many matching records before emitting")
	rootCmd.Flags().IntVar(&flagLimit, "limit", 0, "Emit at most this many records (0 = unlimited)")
	rootCmd.Flags().StringVar(&flagSince, "since", "", "Only records at or after this RFC3339 timestamp")
	rootCmd.Flags().StringVar(&flagUntil, "until", "", "Only records at or before this RFC3339 timestamp")
	rootCmd.Flags().StringVar(&flagProvider, "provider", "", "Only records whose provider name contains this substring")
	rootCmd.Flags().StringSliceVar(&flagEventIDs, "event-id", nil, "Only records with one of these event IDs (comma-separated)")
	rootCmd.Flags().BoolVar(&flagWithMsgs, "with-messages", false, "Resolve human-readable messages via a catalog")
	rootCmd.Flags().StringVar(&flagOut, "out", "", "Write output to this path instead of stdout")
	rootCmd.Flags().BoolVar(&flagPretty, "pretty", false, "Pretty-print each JSON record")
	rootCmd.Flags().StringVar(&flagMessageDB, "messagedb", "", "Path to a sqlite message catalog (requires --with-messages)")
	rootCmd.Flags().StringVar(&flagLocale, "locale", "en-US", "Default locale for message resolution")
	rootCmd.Flags().StringVar(&flagDiagnostics, "diagnostics", "none", "Message resolver diagnostics level: none, basic, full")
	rootCmd.Flags().StringVar(&flagStrategy, "message-strategy", "best-effort", "Message resolution strategy: none, best-effort, required")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "evtxcli:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a returned error to one of the CLI's three non-zero
// exit codes. *evtx.Error carries a Kind; KindIO maps to an I/O failure,
// every other Kind is a format/decode failure, and anything else (flag
// parsing, missing required flags) is a usage error.
func exitCodeFor(err error) int {
	for cur := err; cur != nil; {
		if e, ok := cur.(*evtx.Error); ok {
			if e.Kind == evtx.KindIO {
				return exitIO
			}
			return exitFormat
		}
		if _, ok := cur.(*ioErr); ok {
			return exitIO
		}
		u, ok := cur.(interface{ Unwrap() error })
		if !ok {
			break
		}
		cur = u.Unwrap()
	}
	return exitUsage
}
