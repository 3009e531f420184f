package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validScenario = `
name: immediate-roundtrip
description: three frames through the immediate strategy
role: client
version: "1.2"
direction: engine-to-pipeline
seed: 7
frames:
  - len: 2
  - len: 8000
  - len: 300
strategy:
  kind: immediate
`

func TestValidate_Accepts(t *testing.T) {
	require.NoError(t, Validate([]byte(validScenario)))
}

func TestValidate_AcceptsBatchingAndFlushMarkers(t *testing.T) {
	doc := `
name: batching-with-flush
description: batching with explicit flush boundaries
role: server
version: "1.3"
direction: engine-to-pipeline
frames:
  - len: 0
  - len: 24000
  - flush: true
  - len: 1000
strategy:
  kind: batching
  max_bytes: 4096
  max_delay_ms: 20
  flush_on_boundary: true
`
	assert.NoError(t, Validate([]byte(doc)))
}

func TestValidate_RejectsUnknownRole(t *testing.T) {
	doc := `
name: x
description: y
role: observer
version: "1.2"
direction: engine-to-pipeline
frames: [{len: 1}]
strategy: {kind: immediate}
`
	err := Validate([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "role")
}

func TestValidate_RejectsNegativeFrameLength(t *testing.T) {
	doc := `
name: x
description: y
role: client
version: "1.2"
direction: engine-to-pipeline
frames: [{len: -1}]
strategy: {kind: immediate}
`
	assert.Error(t, Validate([]byte(doc)))
}

func TestValidate_RejectsUnknownStrategyKind(t *testing.T) {
	doc := `
name: x
description: y
role: client
version: "1.2"
direction: engine-to-pipeline
frames: [{len: 1}]
strategy: {kind: adaptive}
`
	assert.Error(t, Validate([]byte(doc)))
}

func TestValidate_RejectsMissingRequiredField(t *testing.T) {
	doc := `
name: x
role: client
version: "1.2"
direction: engine-to-pipeline
frames: [{len: 1}]
strategy: {kind: immediate}
`
	assert.Error(t, Validate([]byte(doc)), "description is required")
}

func TestValidate_RejectsUnparsableYAML(t *testing.T) {
	assert.Error(t, Validate([]byte(":\n  - {")))
}
