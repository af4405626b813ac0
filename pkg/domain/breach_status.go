package domain

import dErrors "custodia/pkg/domain-errors"

// BreachStatus is the lifecycle state of a reported data breach.
//
// There is deliberately no terminal state: a resolved breach can be reopened
// by a manual status update because breaches recur.
type BreachStatus string

const (
	BreachDetected      BreachStatus = "detected"
	BreachInvestigating BreachStatus = "investigating"
	BreachContained     BreachStatus = "contained"
	BreachResolved      BreachStatus = "resolved"
)

var validBreachStatuses = map[BreachStatus]bool{
	BreachDetected:      true,
	BreachInvestigating: true,
	BreachContained:     true,
	BreachResolved:      true,
}

// ParseBreachStatus constructs a BreachStatus from external input.
func ParseBreachStatus(s string) (BreachStatus, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "breach status cannot be empty")
	}
	st := BreachStatus(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid breach status: "+s)
	}
	return st, nil
}

// IsValid checks if the status is one of the supported enum values.
func (s BreachStatus) IsValid() bool {
	return validBreachStatuses[s]
}

// String returns the string representation of the status.
func (s BreachStatus) String() string {
	return string(s)
}
