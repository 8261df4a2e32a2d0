package bridge

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Error classes. Use errors.Is to classify any error returned by this module.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrNetwork       = errors.New("network error")
	ErrProtocol      = errors.New("protocol error")
	ErrTimeout       = errors.New("timed out")
	ErrNotConnected  = errors.New("session not connected")
)

// errEmpty marks a candidate whose response had a recognized shape but no items.
var errEmpty = errors.New("empty result")

// ConfigError returns an ErrConfiguration with a remediation message.
func ConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// CandidateError is the failure of a single endpoint candidate.
type CandidateError struct {
	Capability Capability
	Candidate  string
	StatusCode int
	Kind       error // ErrNetwork or ErrProtocol
	Err        error
}

func (e *CandidateError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]: %v", e.Capability, e.Candidate, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (http %d)", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *CandidateError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ProbeError is returned when every candidate of a capability failed.
type ProbeError struct {
	Capability Capability
	Attempts   []*CandidateError
	combined   error
}

func newProbeError(c Capability, attempts []*CandidateError) *ProbeError {
	var combined error
	for _, a := range attempts {
		combined = multierr.Append(combined, a)
	}
	return &ProbeError{Capability: c, Attempts: attempts, combined: combined}
}

func (e *ProbeError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("%s: no candidates configured", e.Capability)
	}
	return fmt.Sprintf("%s: all %d candidates failed: %v", e.Capability, len(e.Attempts), e.combined)
}

func (e *ProbeError) Unwrap() []error {
	return multierr.Errors(e.combined)
}
