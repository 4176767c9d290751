// Package logging holds the process-wide logger.
//
// Log lines carry operational events only. Passphrases, derived keys and
// plaintext entry fields must never reach a log call at any level.
package logging

import (
	"strings"

	"github.com/sirupsen/logrus"
)

var Log = logrus.New()

// SetLevel adjusts the logger's verbosity. Unknown names fall back to info.
func SetLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		Log.SetLevel(logrus.DebugLevel)
	case "info":
		Log.SetLevel(logrus.InfoLevel)
	case "warning", "warn":
		Log.SetLevel(logrus.WarnLevel)
	case "error":
		Log.SetLevel(logrus.ErrorLevel)
	default:
		Log.SetLevel(logrus.InfoLevel)
	}
}
