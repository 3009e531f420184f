package harness

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/wirecheck/wirecheck/internal/mediator"
	"github.com/wirecheck/wirecheck/internal/pipeline"
	"github.com/wirecheck/wirecheck/internal/poller"
)

// FailureCode categorizes scenario failures.
type FailureCode string

const (
	// CodeTimeout: a blocking wait or poll exceeded its budget.
	CodeTimeout FailureCode = "TIMEOUT"

	// CodeHandshakeFailure: the reference engine rejected the negotiated
	// parameters.
	CodeHandshakeFailure FailureCode = "HANDSHAKE_FAILURE"

	// CodePipelineFault: the handler under test errored while processing
	// injected data.
	CodePipelineFault FailureCode = "PIPELINE_FAULT"

	// CodeMismatch: the final byte comparison failed.
	CodeMismatch FailureCode = "MISMATCH"
)

// ScenarioError is a categorized, scenario-fatal failure.
//
// Every code is fatal to its scenario and only to its scenario; nothing is
// retried. Mismatch errors carry a hex-dump diff for diagnosis.
type ScenarioError struct {
	Code     FailureCode
	Scenario string
	Message  string
	Diff     string // populated for CodeMismatch
	Err      error  // underlying cause, if any
}

// Error implements the error interface.
func (e *ScenarioError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Scenario != "" {
		msg = fmt.Sprintf("%s: %s (scenario=%s)", e.Code, e.Message, e.Scenario)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *ScenarioError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code FailureCode) bool {
	var se *ScenarioError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsTimeout reports whether err is a scenario timeout.
func IsTimeout(err error) bool { return hasCode(err, CodeTimeout) }

// IsHandshakeFailure reports whether err is a handshake rejection.
func IsHandshakeFailure(err error) bool { return hasCode(err, CodeHandshakeFailure) }

// IsPipelineFault reports whether err is a handler fault.
func IsPipelineFault(err error) bool { return hasCode(err, CodePipelineFault) }

// IsMismatch reports whether err is a byte-comparison failure.
func IsMismatch(err error) bool { return hasCode(err, CodeMismatch) }

// isTimeoutCause recognizes the timeout shapes the harness's collaborators
// produce: the adapter's net.Error, the poller's sentinel, a Pending await
// expiry, and context deadlines.
func isTimeoutCause(err error) bool {
	if mediator.IsTimeout(err) ||
		errors.Is(err, poller.ErrTimeout) ||
		errors.Is(err, pipeline.ErrAwaitTimeout) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// classify wraps a transfer-phase error as a ScenarioError: timeouts keep
// their own code, everything else is a pipeline fault.
func classify(scenario, msg string, err error) *ScenarioError {
	code := CodePipelineFault
	if isTimeoutCause(err) {
		code = CodeTimeout
	}
	return &ScenarioError{Code: code, Scenario: scenario, Message: msg, Err: err}
}

// classifyHandshake wraps a handshake-phase error: timeouts keep their own
// code, everything else is a handshake failure.
func classifyHandshake(scenario string, err error) *ScenarioError {
	code := CodeHandshakeFailure
	if isTimeoutCause(err) {
		code = CodeTimeout
	}
	return &ScenarioError{Code: code, Scenario: scenario, Message: "handshake failed", Err: err}
}
