package cmd

import (
	"fmt"

	"github.com/Iron-Ham/hotswap/internal/config"
	"github.com/Iron-Ham/hotswap/internal/errors"
)

// Exit codes returned by the hotswap binary.
const (
	ExitError         = 1
	ExitConfiguration = 2
	ExitInvariant     = 3
)

// Diagnose renders err for the terminal, labelled with its category, and
// returns the matching exit code.
func Diagnose(err error) (string, int) {
	var invalid config.ValidationErrors
	switch {
	case errors.As(err, &invalid):
		return fmt.Sprintf("Configuration error: %v", err), ExitConfiguration
	case !errors.IsFatal(err):
		return fmt.Sprintf("Error: %v", err), ExitError
	case errors.KindOf(err) == errors.KindInvariant:
		return fmt.Sprintf("Internal error (this is a bug in hotswap): %v", err), ExitInvariant
	default:
		return fmt.Sprintf("Configuration error: %v", err), ExitConfiguration
	}
}
