package app

import (
	"strings"

	"github.com/sirupsen/logrus"

	"campaign-mailer-go/internal/config"
)

// ConfigureLogging applies the configured level and format to the standard
// logrus logger. Unknown levels fall back to info.
func ConfigureLogging(cfg config.LogConfig) {
	if strings.EqualFold(cfg.Format, "text") {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
