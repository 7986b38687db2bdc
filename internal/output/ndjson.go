// Package output writes dbgsync events as NDJSON for agents and tooling, or
// as styled text for people.
package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/vburojevic/dbgsync/internal/domain"
)

// SchemaVersion of every line this package writes.
const SchemaVersion = domain.SchemaVersion

// Writer is implemented by NDJSONWriter and TextWriter.
type Writer interface {
	Write(event any) error
	WriteError(code, message string, hint ...string) error
}

// ErrorOutput is the error line emitted on failure.
type ErrorOutput struct {
	Type          string `json:"type"` // error
	SchemaVersion int    `json:"schemaVersion"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	Hint          string `json:"hint,omitempty"`
}

// Delivery is one envelope handed to a peer.
type Delivery struct {
	Type          string           `json:"type"` // delivery
	SchemaVersion int              `json:"schemaVersion"`
	ID            string           `json:"id"`
	Kind          string           `json:"kind"`
	From          domain.ClientKey `json:"from"`
	To            domain.ClientKey `json:"to"`
	Payload       any              `json:"payload"`
}

// Info is a free-form status line.
type Info struct {
	Type          string `json:"type"` // info
	SchemaVersion int    `json:"schemaVersion"`
	Message       string `json:"message"`
}

// NDJSONWriter writes one JSON object per line. It is safe for concurrent use.
type NDJSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewNDJSONWriter creates a writer on w.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &NDJSONWriter{enc: enc}
}

// Write encodes event on its own line.
func (w *NDJSONWriter) Write(event any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(event)
}

// WriteError writes an error line. Only the first hint is kept.
func (w *NDJSONWriter) WriteError(code, message string, hint ...string) error {
	out := &ErrorOutput{
		Type:          "error",
		SchemaVersion: SchemaVersion,
		Code:          code,
		Message:       message,
	}
	if len(hint) > 0 {
		out.Hint = hint[0]
	}
	return w.Write(out)
}
