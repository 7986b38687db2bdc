package cli

import (
	"errors"
	"fmt"

	"github.com/vburojevic/dbgsync/internal/domain"
	"github.com/vburojevic/dbgsync/internal/panel"
	"github.com/vburojevic/dbgsync/internal/registry"
	"github.com/vburojevic/dbgsync/internal/session"
)

// errorCodes maps domain failures to the stable codes agents match on.
var errorCodes = []struct {
	err  error
	code string
	hint string
}{
	{registry.ErrDuplicateClient, "DUPLICATE_CLIENT", "detach the existing client or pick another client id"},
	{registry.ErrNotFound, "NOT_FOUND", "run 'dbgsync clients' to list attached clients"},
	{registry.ErrUnknownClient, "UNKNOWN_CLIENT", "attach the client before updating it"},
	{registry.ErrProjectGone, "PROJECT_GONE", "open the project with 'dbgsync project open'"},
	{registry.ErrSessionConflict, "SESSION_CONFLICT", "sessions belong to exactly one project"},
	{registry.ErrCapabilityEscalation, "CAPABILITY_ESCALATION", "capabilities can only be lowered after attach"},
	{registry.ErrInvalidCapabilities, "INVALID_CAPABILITIES", "see 'dbgsync caps --help' for capability names"},
	{domain.ErrInvalidScenario, "INVALID_SCENARIO", ""},
	{panel.ErrUnsupportedVersion, "UNSUPPORTED_PANEL_VERSION", "upgrade dbgsync"},
	{session.ErrPersist, "PERSIST_FAILED", "check the --store path and disk space"},
}

// classify returns the code and hint for err.
func classify(err error) (string, string) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code, e.hint
		}
	}
	return "INTERNAL", ""
}

// outputErrorCommon normalizes error emission across commands, respecting
// ndjson vs text formats so agents always get machine-readable failures.
func outputErrorCommon(globals *Globals, code, message string, hint ...string) error {
	if globals != nil && globals.Format == "ndjson" {
		_ = globals.writer().WriteError(code, message, hint...)
	} else if globals != nil {
		fmt.Fprintf(globals.Stderr, "Error [%s]: %s", code, message)
		if len(hint) > 0 && hint[0] != "" {
			fmt.Fprintf(globals.Stderr, " (hint: %s)", hint[0])
		}
		fmt.Fprintln(globals.Stderr)
	}
	return errors.New(message)
}

// outputError reports err under its classified code and returns it unchanged
// so callers can still match it with errors.Is.
func outputError(globals *Globals, err error) error {
	code, hint := classify(err)
	_ = outputErrorCommon(globals, code, err.Error(), hint)
	return err
}
