package main

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds the process logger. Each -v lowers the zap level by one
// so logr V(n) lines show up.
func newLogger(format string, verbosity int) (logr.Logger, func(), error) {
	var zc zap.Config
	switch format {
	case "console", "":
		zc = zap.NewDevelopmentConfig()
		zc.DisableStacktrace = true
	case "json":
		zc = zap.NewProductionConfig()
		zc.Sampling = nil
	default:
		return logr.Discard(), func() {}, fmt.Errorf("unknown log format %q, want console or json", format)
	}
	zc.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))

	zl, err := zc.Build()
	if err != nil {
		return logr.Discard(), func() {}, fmt.Errorf("building logger: %w", err)
	}
	log := zapr.NewLogger(zl).WithValues("run", uuid.NewString())
	return log, func() { _ = zl.Sync() }, nil
}
