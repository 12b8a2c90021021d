// Package logx provides structured logging with per-entity prefixes and
// env-controlled debug domains.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger writes timestamped, source-prefixed lines to stderr. The source is
// typically an entity key ("pr:acme/widgets#42") or a subsystem name
// ("runtime", "gateway").
type Logger struct {
	source string
	logger *log.Logger
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	debugMu      sync.RWMutex
	debugEnabled bool
	debugDomains map[string]bool // nil = all domains
)

func init() { //nolint:gochecknoinits // env var initialization
	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		debugEnabled = true
	}
	if v := os.Getenv("DEBUG_DOMAINS"); v != "" {
		debugDomains = make(map[string]bool)
		for _, d := range strings.Split(v, ",") {
			debugDomains[strings.TrimSpace(d)] = true
		}
	}
}

// NewLogger creates a logger for the given source.
func NewLogger(source string) *Logger {
	return &Logger{
		source: source,
		logger: log.New(os.Stderr, "", 0), // stderr keeps stdout clean for CLI use
	}
}

// SetDebug toggles debug logging; domains restricts it to the named domains
// (empty slice enables all).
func SetDebug(enabled bool, domains ...string) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugEnabled = enabled
	if len(domains) == 0 {
		debugDomains = nil
		return
	}
	debugDomains = make(map[string]bool, len(domains))
	for _, d := range domains {
		debugDomains[strings.TrimSpace(d)] = true
	}
}

// DebugEnabled reports whether debug logging is on for a domain.
func DebugEnabled(domain string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	if !debugEnabled {
		return false
	}
	if debugDomains == nil {
		return true
	}
	return debugDomains[domain]
}

func (l *Logger) log(level Level, format string, args ...any) {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	l.logger.Printf("[%s] [%s] %s: %s", ts, l.source, level, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...any) {
	if !DebugEnabled(l.source) {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// WithSource returns a logger sharing the underlying writer with a new prefix.
func (l *Logger) WithSource(source string) *Logger {
	return &Logger{source: source, logger: l.logger}
}

var defaultLogger = NewLogger("coordinator")

func Infof(format string, args ...any)  { defaultLogger.Info(format, args...) }
func Warnf(format string, args ...any)  { defaultLogger.Warn(format, args...) }
func Debugf(format string, args ...any) { defaultLogger.Debug(format, args...) }

// Errorf logs and returns the formatted error. Use when a failure must be
// both surfaced to the caller and visible in the log:
//
//	return logx.Errorf("snapshot commit failed: %w", err)
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err and returns the wrapped error. Returns nil when
// err is nil so it can sit directly on a return statement.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
