package orchestrator

import (
	"errors"

	"github.com/cratos-ai/cratos/internal/coreerr"
)

// sanitizeError implements spec §4.10 step 5's "sanitise" requirement for
// ExecutionFailed{error_sanitised}: a *coreerr.CoreError's Kind and
// Message are safe to surface (they're authored by this core's own
// constructors), but its wrapped Cause may carry raw OS/driver errors —
// file paths, connection strings, stack-shaped text — that must never
// reach an event subscriber. Anything that isn't a *CoreError is
// collapsed to a generic internal-error message.
func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	var ce *coreerr.CoreError
	if errors.As(err, &ce) {
		if ce.Message == "" {
			return string(ce.Kind)
		}
		return string(ce.Kind) + ": " + ce.Message
	}
	return "internal error"
}
