// Package logging builds the zap.Logger shared by the anonymization and
// extraction engines, cmd/nilscore, and their supporting packages.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-profile zap.Logger, switched to debug level when
// verbose is set. Grounded on the codenerd CLI's main.go logger init
// (zap.NewProductionConfig + NewAtomicLevelAt(DebugLevel) toggle).
func New(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// WithCohort returns logger scoped to one cohort's run, attaching the
// cohort name and ID to every subsequent entry.
func WithCohort(logger *zap.Logger, cohortName string, cohortID int64) *zap.Logger {
	return logger.With(zap.String("cohort", cohortName), zap.Int64("cohort_id", cohortID))
}
