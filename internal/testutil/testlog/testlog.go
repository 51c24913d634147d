// Package testlog quiets the global logger for tests unless REFGATE_TEST_LOG
// asks for a level.
package testlog

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func Start(t *testing.T) {
	t.Helper()
	lvl := zerolog.Disabled
	if env := os.Getenv("REFGATE_TEST_LOG"); env != "" {
		if parsed, err := zerolog.ParseLevel(env); err == nil {
			lvl = parsed
		}
	}
	zerolog.SetGlobalLevel(lvl)
}
