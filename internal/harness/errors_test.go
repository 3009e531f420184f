package harness

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirecheck/wirecheck/internal/pipeline"
	"github.com/wirecheck/wirecheck/internal/poller"
)

func TestScenarioError_Message(t *testing.T) {
	err := &ScenarioError{
		Code:     CodeMismatch,
		Scenario: "frag-1",
		Message:  "received bytes differ from sent",
	}
	assert.Equal(t, "MISMATCH: received bytes differ from sent (scenario=frag-1)", err.Error())
}

func TestScenarioError_Unwrap(t *testing.T) {
	cause := errors.New("handler exploded")
	err := &ScenarioError{Code: CodePipelineFault, Message: "injecting frame", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "handler exploded")
}

func TestFailurePredicates(t *testing.T) {
	timeout := &ScenarioError{Code: CodeTimeout}
	handshake := &ScenarioError{Code: CodeHandshakeFailure}
	fault := &ScenarioError{Code: CodePipelineFault}
	mismatch := &ScenarioError{Code: CodeMismatch}

	assert.True(t, IsTimeout(timeout))
	assert.False(t, IsTimeout(fault))

	assert.True(t, IsHandshakeFailure(handshake))
	assert.True(t, IsPipelineFault(fault))
	assert.True(t, IsMismatch(mismatch))

	// Predicates see through wrapping.
	wrapped := fmt.Errorf("scenario run: %w", timeout)
	assert.True(t, IsTimeout(wrapped))

	assert.False(t, IsTimeout(errors.New("plain")))
	assert.False(t, IsTimeout(nil))
}

func TestClassify_TimeoutCauses(t *testing.T) {
	causes := []error{
		poller.ErrTimeout,
		pipeline.ErrAwaitTimeout,
		context.DeadlineExceeded,
		fmt.Errorf("wrapped: %w", poller.ErrTimeout),
	}
	for _, cause := range causes {
		se := classify("s", "waiting", cause)
		assert.Equal(t, CodeTimeout, se.Code, "cause: %v", cause)
	}
}

func TestClassify_Fault(t *testing.T) {
	se := classify("s", "injecting frame", errors.New("bad record MAC"))
	require.Equal(t, CodePipelineFault, se.Code)
	assert.Equal(t, "s", se.Scenario)
}

func TestClassifyHandshake(t *testing.T) {
	se := classifyHandshake("s", errors.New("tls: no cipher suite supported"))
	assert.Equal(t, CodeHandshakeFailure, se.Code)

	se = classifyHandshake("s", context.DeadlineExceeded)
	assert.Equal(t, CodeTimeout, se.Code)
}
