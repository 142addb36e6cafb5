package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not_found")
	ErrUsernameTaken      = errors.New("username_taken")
	ErrEmailTaken         = errors.New("email_taken")
	ErrExternalLoginTaken = errors.New("external_login_taken")
	ErrInvalidArgument    = errors.New("invalid_argument")
	ErrBusinessRule       = errors.New("business_rule")
	ErrPersistence        = errors.New("persistence")
	ErrValidation         = errors.New("validation")
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(fields map[string]string) error {
	return &ValidationError{Fields: fields}
}

// FailureKind classifies an expected, caller-correctable rejection.
type FailureKind string

const (
	FailureInvalidArgument FailureKind = "invalid_argument"
	FailureBusinessRule    FailureKind = "business_rule"
)

// Failure is returned as a value, not an error, when a provisioning request
// is rejected by validation or business rules.
type Failure struct {
	Kind    FailureKind
	Code    string
	Message string
}

func InvalidArgument(code, message string) *Failure {
	return &Failure{Kind: FailureInvalidArgument, Code: code, Message: message}
}

func BusinessRule(code, message string) *Failure {
	return &Failure{Kind: FailureBusinessRule, Code: code, Message: message}
}

// Err converts the failure into an error for callers that prefer errors.Is.
func (f *Failure) Err() error {
	if f == nil {
		return nil
	}
	return &RuleError{Failure: *f}
}

type RuleError struct {
	Failure Failure
}

func (e *RuleError) Error() string {
	return e.Failure.Code + ": " + e.Failure.Message
}

func (e *RuleError) Unwrap() error {
	if e.Failure.Kind == FailureInvalidArgument {
		return ErrInvalidArgument
	}
	return ErrBusinessRule
}

// PersistenceError wraps an unexpected storage fault.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

func NewPersistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
