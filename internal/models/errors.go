package models

import (
	"fmt"
	"strings"
)

// DecodeError indicates a malformed external snapshot. It always aborts an
// import before any mutation.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed snapshot: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// Violation names one record that failed validation
type Violation struct {
	ListID string `json:"listId,omitempty"`
	ItemID string `json:"itemId,omitempty"`
	Rule   string `json:"rule"`
}

// ValidationError collects every validation failure in an external
// snapshot so nothing is partially applied.
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

// Add records a violation
func (e *ValidationError) Add(listID, itemID, rule string) {
	e.Violations = append(e.Violations, Violation{ListID: listID, ItemID: itemID, Rule: rule})
}

// HasViolations reports whether any violation was recorded
func (e *ValidationError) HasViolations() bool {
	return len(e.Violations) > 0
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "snapshot validation failed"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		ref := v.ListID
		if v.ItemID != "" {
			ref = ref + "/" + v.ItemID
		}
		if ref == "" {
			parts = append(parts, v.Rule)
		} else {
			parts = append(parts, ref+": "+v.Rule)
		}
	}
	return "snapshot validation failed: " + strings.Join(parts, "; ")
}

// StoreError indicates a failed store read or write
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// TransportError indicates a failed companion send. It is always
// non-fatal: local correctness never depends on companion delivery.
type TransportError struct {
	Reason string
	Cause  error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("companion transport: %s: %v", e.Reason, e.Cause)
	}
	return "companion transport: " + e.Reason
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}
