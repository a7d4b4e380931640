// Package logging builds the shared zap logger. The TUI owns stdout, so all
// logs go to a file under the config directory.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"previewchat/internal/config"
)

func New() (*zap.Logger, error) {
	path, err := config.LogPath()
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Nop returns a discard logger for tests and for callers that have not set
// up the file sink.
func Nop() *zap.Logger {
	return zap.NewNop()
}
