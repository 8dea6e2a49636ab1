package evtx

import (
	"sync"

	"github.com/phuslu/log"
)

// Logger is the sole process-wide collaborator this library consults, and
// only on recovery paths (warn/error) per the "silent by default" rule.
// Implementations must be safe for concurrent use.
type Logger interface {
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// phusluLogger adapts github.com/phuslu/log to the Logger interface.
type phusluLogger struct {
	l log.Logger
}

func (p *phusluLogger) Warn(msg string, fields map[string]interface{}) {
	e := p.l.Warn()
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

func (p *phusluLogger) Error(msg string, fields map[string]interface{}) {
	e := p.l.Error()
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

// discardLogger is the default: the library never logs unless told to.
type discardLogger struct{}

func (discardLogger) Warn(string, map[string]interface{})  {}
func (discardLogger) Error(string, map[string]interface{}) {}

var (
	loggerMu   sync.RWMutex
	pkgLogger  Logger = discardLogger{}
	loggerInit bool
)

// SetLogger installs the process-wide logger. Idempotent: calling it again
// simply swaps the collaborator, it does not accumulate state.
func SetLogger(l Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if l == nil {
		l = discardLogger{}
	}
	pkgLogger = l
	loggerInit = true
}

// NewPhusluLogger builds a Logger backed by github.com/phuslu/log, for
// callers that want structured output without writing their own adapter.
func NewPhusluLogger(l log.Logger) Logger {
	return &phusluLogger{l: l}
}

func warnf(msg string, fields map[string]interface{}) {
	loggerMu.RLock()
	l := pkgLogger
	loggerMu.RUnlock()
	l.Warn(msg, fields)
}

func errorf(msg string, fields map[string]interface{}) {
	loggerMu.RLock()
	l := pkgLogger
	loggerMu.RUnlock()
	l.Error(msg, fields)
}
