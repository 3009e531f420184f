package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validScenarioYAML = `name: cli-valid
description: a well-formed scenario
role: client
version: "1.3"
direction: engine-to-pipeline
seed: 3
frames:
  - len: 64
strategy:
  kind: immediate
`

const invalidScenarioYAML = `name: cli-invalid
description: batching without any flush trigger
role: client
version: "1.3"
direction: engine-to-pipeline
frames:
  - len: 64
strategy:
  kind: batching
`

func writeScenarioFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateCommand_ValidFile(t *testing.T) {
	path := writeScenarioFile(t, "valid.yaml", validScenarioYAML)

	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", path})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, out.String(), "✓")
}

func TestValidateCommand_InvalidFile(t *testing.T) {
	path := writeScenarioFile(t, "invalid.yaml", invalidScenarioYAML)

	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out.String(), "✗")
}

func TestValidateCommand_MissingFile(t *testing.T) {
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", filepath.Join(t.TempDir(), "nope.yaml")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestValidateCommand_JSONOutput(t *testing.T) {
	valid := writeScenarioFile(t, "valid.yaml", validScenarioYAML)
	invalid := writeScenarioFile(t, "invalid.yaml", invalidScenarioYAML)

	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "json", "validate", valid, invalid})

	err := cmd.Execute()
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, err2 := json.Marshal(resp.Data)
	require.NoError(t, err2)
	var result ValidationResult
	require.NoError(t, json.Unmarshal(data, &result))

	assert.False(t, result.Valid)
	require.Len(t, result.Files, 2)
	assert.True(t, result.Files[0].Valid)
	assert.False(t, result.Files[1].Valid)
	assert.NotEmpty(t, result.Files[1].Error)
}
