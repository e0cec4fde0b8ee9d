// Package util hosts small process-wide helpers with no domain knowledge.
package util

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger builds the root logger at the requested level, falling back to
// info when the level string is unrecognized.
func NewLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
}
