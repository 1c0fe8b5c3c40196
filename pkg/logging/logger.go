// Package logging thins logrus down to the aliases the rest of the codebase
// imports, so packages never depend on logrus directly.
package logging

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ahfmawlrl/sns-solution/pkg/config"
)

type (
	Logger = *logrus.Logger
	Entry  = *logrus.Entry
	Fields = logrus.Fields
	Level  = logrus.Level
)

const (
	DebugLevel = logrus.DebugLevel
	InfoLevel  = logrus.InfoLevel
	WarnLevel  = logrus.WarnLevel
	ErrorLevel = logrus.ErrorLevel
)

// NewLogger builds a logger from the environment: JSON output unless
// LOG_FORMAT=text, level from LOG_LEVEL.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(config.GetLogLevel())

	if config.GetEnv("LOG_FORMAT", "json") == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}
	return logger
}

// NewLoggerWithService stamps every entry with the service name.
func NewLoggerWithService(serviceName string) *logrus.Logger {
	logger := NewLogger()
	logger.AddHook(&serviceHook{service: serviceName})
	return logger
}

type serviceHook struct {
	service string
}

func (h *serviceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *serviceHook) Fire(entry *logrus.Entry) error {
	entry.Data["service"] = h.service
	return nil
}
