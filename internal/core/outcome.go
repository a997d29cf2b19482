package core

import "fmt"

// Outcome is the result of one convergence attempt. The set of
// implementations is closed: Accepted and Failed.
type Outcome interface {
	isOutcome()
}

// Accepted means the plugin converged the resource. Only Accepted
// outcomes advance the cursor or remove repository records.
type Accepted struct{}

// Failed means convergence did not happen; the event will be retried
// when it, or a newer one, is delivered again.
type Failed struct {
	Reason string
}

func (Accepted) isOutcome() {}
func (Failed) isOutcome()   {}

func (f Failed) String() string {
	return "failed: " + f.Reason
}

// Failf builds a Failed outcome from a format string.
func Failf(format string, args ...any) Failed {
	return Failed{Reason: fmt.Sprintf(format, args...)}
}

// IsAccepted reports whether o is Accepted.
func IsAccepted(o Outcome) bool {
	_, ok := o.(Accepted)
	return ok
}

func outcomeLabel(o Outcome) string {
	if IsAccepted(o) {
		return "accepted"
	}
	return "failed"
}

func outcomeReason(o Outcome) string {
	if f, ok := o.(Failed); ok {
		return f.Reason
	}
	return ""
}
