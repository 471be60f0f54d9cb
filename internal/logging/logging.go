// Package logging configures the process-wide structured logger.
package logging

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// New builds a logrus entry configured from the environment.
// Local runs get a readable console format; everything else emits JSON.
func New() *logrus.Entry {
	base := logrus.New()

	env := os.Getenv("ENVIRONMENT")
	if env == "" || env == "local" {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	}

	base.SetOutput(os.Stdout)

	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		base.SetLevel(logrus.DebugLevel)
	case "warn":
		base.SetLevel(logrus.WarnLevel)
	case "error":
		base.SetLevel(logrus.ErrorLevel)
	default:
		base.SetLevel(logrus.InfoLevel)
	}

	return logrus.NewEntry(base)
}

// ForComponent returns a logger tagged with a component name.
func ForComponent(log *logrus.Entry, component string) *logrus.Entry {
	return log.WithField("component", component)
}

// ForJob returns a logger tagged with a job id.
func ForJob(log *logrus.Entry, jobID string) *logrus.Entry {
	return log.WithField("job_id", jobID)
}
