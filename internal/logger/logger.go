// Package logger configures the global logrus logger.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/kozaktomas/face-recognizer/internal/config"

	log "github.com/sirupsen/logrus"
)

// Init configures level, format and outputs of the global logger.
// The returned closer releases the log file and is never nil.
func Init(cfg config.LogConfig) (io.Closer, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Invalid log level '%s', defaulting to 'info': %v", cfg.Level, err)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
		})
	}

	// Always log to stdout for container logs
	writers := []io.Writer{os.Stdout}
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		logDir := filepath.Dir(cfg.File)
		if err := os.MkdirAll(logDir, 0o750); err != nil {
			return closer, err
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o660)
		if err != nil {
			return closer, err
		}
		writers = append(writers, file)
		closer = file
	}

	log.SetOutput(io.MultiWriter(writers...))
	log.WithField("level", level.String()).Debug("Logger initialized")
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
