package cli

import "go.uber.org/zap/zapcore"

// validateFlags centralizes common flag combinations to keep behavior consistent.
func validateFlags(globals *Globals) error {
	if globals.Store == "" && (globals.Config == nil || globals.Config.Store.Path == "") {
		return outputErrorCommon(globals, "INVALID_FLAGS", "no state database configured", "pass --store or set store.path in dbgsync.yaml")
	}
	if globals.Verbose {
		if _, err := zapcore.ParseLevel(globals.Level); err != nil {
			return outputErrorCommon(globals, "INVALID_FLAGS", "unknown log level "+globals.Level, "use debug, info, warn or error")
		}
	}
	// verbose diagnostics go to stderr; with --quiet nothing would explain a failure
	if globals.Quiet && globals.Verbose {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--quiet cannot be combined with --verbose", "drop one of them")
	}
	return nil
}
