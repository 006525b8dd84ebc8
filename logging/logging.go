// Package logging configures the process-wide logrus logger.
package logging

import "github.com/sirupsen/logrus"

// Init sets the standard logger's level and formatter. json selects
// structured JSON output (for log aggregation); otherwise the default
// human-readable text formatter is used.
func Init(debug bool, json bool) {
	if json {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
}
