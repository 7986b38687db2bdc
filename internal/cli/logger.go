package cli

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds the diagnostics logger. Without --verbose it discards
// everything so stdout/stderr stay clean for agents.
func newLogger(globals *Globals) *zap.Logger {
	if globals == nil || !globals.Verbose || globals.Stderr == nil {
		return zap.NewNop()
	}
	level, err := zapcore.ParseLevel(globals.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(cfg.EncoderConfig),
		zapcore.AddSync(globals.Stderr),
		zap.NewAtomicLevelAt(level),
	)
	return zap.New(core).Named("dbgsync")
}
