package netwatch

import (
	"github.com/sirupsen/logrus"
)

// Module-level logger with pre-configured module field
var logger = logrus.WithField("module", "netwatch")

// GetLogger returns a logger instance for the netwatch module
func GetLogger() *logrus.Entry {
	return logger
}
