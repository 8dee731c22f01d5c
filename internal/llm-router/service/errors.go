package service

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError is bad caller input. It is raised before any routing and
// never touches the ledger or router state.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// QuotaExceededError means no candidate had daily token budget left, or the
// requested model is not available on the plan.
type QuotaExceededError struct {
	Models    []string
	Plan      string
	ResetTime time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf(
		"daily token limit reached for %s on the %s plan", strings.Join(e.Models, ", "), e.Plan,
	)
}

// RetryAfter is the time left until the daily ceilings reset.
func (e *QuotaExceededError) RetryAfter(now time.Time) time.Duration {
	if d := e.ResetTime.Sub(now); d > 0 {
		return d
	}
	return 0
}

// UpstreamExhaustedError means every candidate's provider call failed. Err
// is the last provider error.
type UpstreamExhaustedError struct {
	Attempted []string
	Err       error
}

func (e *UpstreamExhaustedError) Error() string {
	return fmt.Sprintf("all AI models failed (tried %s): %v", strings.Join(e.Attempted, ", "), e.Err)
}

func (e *UpstreamExhaustedError) Unwrap() error {
	return e.Err
}
