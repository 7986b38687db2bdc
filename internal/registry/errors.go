package registry

import (
	"errors"
	"fmt"
)

// Recoverable registry failures. All of them are returned wrapped with the
// affected key; test with errors.Is.
var (
	// ErrDuplicateClient means (id, project_id) is already registered.
	ErrDuplicateClient = errors.New("duplicate debug client")
	// ErrNotFound means an unregister targeted a record that does not exist.
	ErrNotFound = errors.New("debug client not found")
	// ErrUnknownClient means a panel or capability update came from a client
	// with no live record. The client should re-register before retrying.
	ErrUnknownClient = errors.New("unknown debug client")
	// ErrProjectGone means the project is not open, or was deleted.
	ErrProjectGone = errors.New("project gone")
	// ErrSessionConflict means the session is already owned by another project.
	ErrSessionConflict = errors.New("debug session belongs to another project")
	// ErrCapabilityEscalation means a renegotiation tried to add capabilities
	// the client never held.
	ErrCapabilityEscalation = errors.New("capability escalation")
	// ErrInvalidCapabilities means reserved capability bits were set.
	ErrInvalidCapabilities = errors.New("invalid capabilities")
)

// invariant panics on states that only a registry bug can produce.
func invariant(ok bool, format string, args ...any) {
	if !ok {
		panic(fmt.Sprintf("registry invariant violated: "+format, args...))
	}
}
