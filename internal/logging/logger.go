// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/localbin/localbin/internal/config"
)

// Init builds a logger from configuration. Console output is plain text on
// stderr (cargo owns stdout during builds); when log_file is set, JSON
// records go to a size-rotated file instead.
func Init(cfg *config.Config) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)

	output, toFile, err := buildOutput(cfg)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(output)

	if toFile {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: true,
		})
	}

	return logger, nil
}

// buildOutput creates the log writer; the second return reports whether it
// is a file
func buildOutput(cfg *config.Config) (io.Writer, bool, error) {
	if cfg.LogFile == "" {
		return os.Stderr, false, nil
	}

	dir := filepath.Dir(cfg.LogFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, false, fmt.Errorf("create log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		LocalTime:  true,
	}
	return rotator, true, nil
}
