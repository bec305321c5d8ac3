// Package logger builds the logrus instance the rest of the bot logs
// through and carries the correlation-field helpers handlers use.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/openrouter-tgbot-go/internal/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a logger from config: level, json/text format, and
// stdout or rotated-file output.
func NewLogger(cfg *config.LoggingConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	out, err := output(cfg)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(formatter(cfg.Format))
	logger.SetOutput(out)
	return logger, nil
}

func formatter(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		}
	}
	return &logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	}
}

func output(cfg *config.LoggingConfig) (io.Writer, error) {
	if cfg.Output != "file" {
		return os.Stdout, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o755); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   cfg.File.Path,
		MaxSize:    cfg.File.MaxSize, // megabytes
		MaxBackups: cfg.File.MaxBackups,
		MaxAge:     cfg.File.MaxAge, // days
		Compress:   true,
	}, nil
}

// WithUser adds the chat/user correlation fields the handlers log with.
func WithUser(logger *logrus.Logger, chatID int64, userID int64) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"user_id": userID,
	})
}

// WithCompletion extends WithUser with the model field every completion log
// line carries.
func WithCompletion(logger *logrus.Logger, chatID, userID int64, model string) *logrus.Entry {
	return WithUser(logger, chatID, userID).WithField("model", model)
}
