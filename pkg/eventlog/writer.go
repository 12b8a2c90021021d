// Package eventlog provides an append-only audit trail of every event
// dispatched into the actor runtime, written as daily-rotated JSONL files.
// The audit record is written before the event is applied, so a crashed
// transition still leaves a trace of what was attempted.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"coordinator/pkg/proto"
)

// Writer appends envelope records to daily rotated JSONL files.
type Writer struct {
	logDir      string
	currentFile *os.File
	currentDate string
	mu          sync.Mutex
}

// record is the serialized audit line. The event payload is re-marshaled
// explicitly because Envelope excludes it from its own JSON form.
type record struct {
	ID         string          `json:"id"`
	EntityKey  proto.EntityKey `json:"entity_key"`
	EventKind  string          `json:"event_kind"`
	ReceivedAt time.Time       `json:"received_at"`
	Event      any             `json:"event,omitempty"`
}

// NewWriter creates a writer rooted at logDir, creating the directory if
// needed.
func NewWriter(logDir string) (*Writer, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &Writer{logDir: logDir}
	if err := w.rotateIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize log file: %w", err)
	}
	return w, nil
}

// WriteEnvelope appends one dispatched envelope to the current log file,
// rotating first if the day changed.
func (w *Writer) WriteEnvelope(env *proto.Envelope) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateIfNeeded(); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	data, err := json.Marshal(record{
		ID:         env.ID,
		EntityKey:  env.Key,
		EventKind:  env.EventKind,
		ReceivedAt: env.ReceivedAt,
		Event:      env.Event,
	})
	if err != nil {
		return fmt.Errorf("failed to serialize envelope: %w", err)
	}

	if _, err := w.currentFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write envelope: %w", err)
	}
	return nil
}

func (w *Writer) rotateIfNeeded() error {
	date := time.Now().UTC().Format("2006-01-02")
	if w.currentFile != nil && w.currentDate == date {
		return nil
	}

	if w.currentFile != nil {
		if err := w.currentFile.Close(); err != nil {
			return fmt.Errorf("failed to close current log file: %w", err)
		}
	}

	path := filepath.Join(w.logDir, fmt.Sprintf("events-%s.jsonl", date))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	w.currentFile = file
	w.currentDate = date
	return nil
}

// Close closes the current log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return nil
	}
	err := w.currentFile.Close()
	w.currentFile = nil
	if err != nil {
		return fmt.Errorf("failed to close event log file: %w", err)
	}
	return nil
}
