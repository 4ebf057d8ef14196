// Package logging centralizes the logrus setup every component is handed
// at construction time, mirroring the teacher's injected *pluginapi.Client
// logging calls (p.API.LogDebug/LogInfo/LogError with key/value pairs).
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the process-wide logger. component is attached as a field so
// log lines are attributable without grep-by-package.
func New(component string) *logrus.Entry {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if parsed, err := logrus.ParseLevel(lvl); err == nil {
			log.SetLevel(parsed)
		}
	}

	return log.WithField("component", component)
}
