package planner

import (
	"errors"
	"fmt"
)

// ErrNoUnits is returned when no plan can be built because no generation
// units are registered for the requested stages.
var ErrNoUnits = errors.New("no generation units available for plan")

// PlanParseError describes why an oracle response could not be turned into a
// plan. It is recovered by falling back to the deterministic plan and is never
// surfaced as a run failure.
type PlanParseError struct {
	Reason string
	Err    error
}

func (e *PlanParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("plan parse: %s: %v", e.Reason, e.Err)
	}
	return "plan parse: " + e.Reason
}

func (e *PlanParseError) Unwrap() error {
	return e.Err
}

func parseErrorf(format string, args ...any) *PlanParseError {
	return &PlanParseError{Reason: fmt.Sprintf(format, args...)}
}
