package app

import (
	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger builds a production zap logger at level. Output goes to stderr unless paths are given.
func Logger(level string, paths ...string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}
	cfg.Level.SetLevel(lvl)
	if len(paths) > 0 {
		cfg.OutputPaths = paths
	}

	lg, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return lg, nil
}
