package reachability

import (
	"github.com/sirupsen/logrus"
)

// Module-level logger with pre-configured module field
var logger = logrus.WithField("module", "reachability")

// GetLogger returns a logger instance for the reachability module
func GetLogger() *logrus.Entry {
	return logger
}
