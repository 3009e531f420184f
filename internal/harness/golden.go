package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the deterministic projection of a Result used for golden
// comparison. Run IDs and durations are excluded: they change every run.
type Snapshot struct {
	Scenario      string   `json:"scenario"`
	Passed        bool     `json:"passed"`
	Frames        int      `json:"frames"`
	BytesSent     int      `json:"bytes_sent"`
	BytesReceived int      `json:"bytes_received"`
	Errors        []string `json:"errors,omitempty"`
}

// NewSnapshot projects a Result for golden comparison.
func NewSnapshot(res *Result) Snapshot {
	return Snapshot{
		Scenario:      res.Scenario,
		Passed:        res.Passed,
		Frames:        res.Frames,
		BytesSent:     res.BytesSent,
		BytesReceived: res.BytesReceived,
		Errors:        res.Errors,
	}
}

// RunWithGolden executes a scenario and compares its deterministic
// snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, sc *Scenario) (*Result, error) {
	t.Helper()

	res, err := Run(sc)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(NewSnapshot(res), "", "  ")
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, sc.Name, data)
	return res, nil
}
