package monitor

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// AuditWriter appends security events to an append-only stream, one
// JSON document per line. Records are never rewritten.
type AuditWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewAuditWriter writes the audit stream to w.
func NewAuditWriter(w io.Writer) *AuditWriter {
	return &AuditWriter{out: w}
}

// OpenAuditFile opens (or creates) an append-only audit log at path.
func OpenAuditFile(path string) (*AuditWriter, *os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return NewAuditWriter(f), f, nil
}

// Append writes one event record.
func (w *AuditWriter) Append(event SecurityEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize audit record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}
