package db

import "time"

// Result is the outcome of a single check. It is created once by the check
// (or by the scanner on the check's behalf) and never modified afterwards.
type Result struct {
	Name      string         `json:"name" validate:"required"`
	Passed    bool           `json:"passed"`
	Message   string         `json:"message" validate:"required"`
	Details   map[string]any `json:"details"`
	Timestamp time.Time      `json:"timestamp" validate:"required"`
}

// NewResult creates a result stamped with the current time. A nil details
// map is replaced with an empty one.
func NewResult(name string, passed bool, message string, details map[string]any) *Result {
	if details == nil {
		details = map[string]any{}
	}

	return &Result{
		Name:      name,
		Passed:    passed,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}
}

func Pass(name string, message string, details map[string]any) *Result {
	return NewResult(name, true, message, details)
}

func Fail(name string, message string, details map[string]any) *Result {
	return NewResult(name, false, message, details)
}

// withName returns a copy of r carrying the given name.
func (r *Result) withName(name string) *Result {
	c := *r
	c.Name = name
	if c.Details == nil {
		c.Details = map[string]any{}
	}
	return &c
}
