// Package audit appends one JSON line per provisioning step so imports can
// be traced after the fact, including the ones that failed.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"profilepm/internal/errs"
)

type Logger struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

type Event struct {
	Timestamp string            `json:"timestamp"`
	Operation string            `json:"operation"`
	Phase     string            `json:"phase"`
	Status    string            `json:"status"`
	Kind      string            `json:"kind,omitempty"`
	Entry     string            `json:"entry,omitempty"`
	Message   string            `json:"message,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// New returns a logger appending to path. A nil now uses the wall clock.
func New(path string, now func() time.Time) *Logger {
	if now == nil {
		now = time.Now
	}
	return &Logger{path: path, now: now}
}

func (l *Logger) Log(ev Event) error {
	if l == nil || l.path == "" {
		return nil
	}
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	ev.Timestamp = now().UTC().Format(time.RFC3339Nano)
	blob, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(blob, '\n')); err != nil {
		return err
	}
	return nil
}

// Failure records err against op/phase with its failure kind.
func (l *Logger) Failure(op, phase, entry string, err error) error {
	return l.Log(Event{
		Operation: op,
		Phase:     phase,
		Status:    "error",
		Kind:      errs.KindOf(err),
		Entry:     entry,
		Message:   err.Error(),
	})
}
