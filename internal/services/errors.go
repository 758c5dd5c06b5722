package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDetectionTimeout = errors.New("detection timeout")
	ErrInjection        = errors.New("input injection failed")
	ErrExtraction       = errors.New("extraction failed")
	ErrNetwork          = errors.New("network failure")
	ErrConfiguration    = errors.New("configuration error")
	ErrValidation       = errors.New("validation error")
	ErrInterrupted      = errors.New("interrupted")
	ErrFlowBusy         = errors.New("flow already running")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrExtraction
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorDetails is the log/report friendly breakdown of a wrapped error.
type ErrorDetails struct {
	Kind    string
	Message string
	Hint    string
}

// Details classifies err against the sentinel markers.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	d := ErrorDetails{Kind: "unknown", Message: err.Error()}
	switch {
	case errors.Is(err, ErrInterrupted), errors.Is(err, context.Canceled):
		d.Kind = "interrupted"
		d.Hint = "stop requested; next cycle resumes normally"
	case errors.Is(err, ErrDetectionTimeout):
		d.Kind = "detection_timeout"
		d.Hint = "check template assets and whether the session froze"
	case errors.Is(err, ErrInjection):
		d.Kind = "injection"
		d.Hint = "verify the screen driver is running in the active desktop session"
	case errors.Is(err, ErrExtraction):
		d.Kind = "extraction"
		d.Hint = "inspect OCR/LLM credentials and response payloads"
	case errors.Is(err, ErrNetwork):
		d.Kind = "network"
		d.Hint = "check backend reachability"
	case errors.Is(err, ErrConfiguration):
		d.Kind = "configuration"
		d.Hint = "run rpanode config validate"
	case errors.Is(err, ErrValidation):
		d.Kind = "validation"
	case errors.Is(err, ErrFlowBusy):
		d.Kind = "busy"
		d.Hint = "another flow holds the desktop session"
	}
	return d
}

// IsInterrupted reports whether err represents a cooperative stop rather than
// a real failure.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
