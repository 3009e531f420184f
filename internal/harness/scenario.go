package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wirecheck/wirecheck/internal/schema"
	"github.com/wirecheck/wirecheck/internal/strategy"
)

// Role values for the reference engine side of a scenario. The handler
// under test always plays the complement.
const (
	RoleClient = "client"
	RoleServer = "server"
)

// Direction values: which side originates the application payload.
const (
	// DirEngineToPipeline: the reference engine writes, the pipeline's
	// handler decrypts, the app tap accumulates.
	DirEngineToPipeline = "engine-to-pipeline"

	// DirPipelineToEngine: application writes enter the pipeline, the
	// handler frames them, the reference engine reads.
	DirPipelineToEngine = "pipeline-to-engine"
)

// Strategy kinds.
const (
	StrategyImmediate = "immediate"
	StrategyBatching  = "batching"
)

// Frame is one step of a scenario's payload sequence: either a frame of
// Len random bytes, or an explicit flush boundary (no sentinel lengths —
// flush markers are their own entry kind).
type Frame struct {
	Len   int  `yaml:"len,omitempty"`
	Flush bool `yaml:"flush,omitempty"`
}

// StrategyConfig selects and parameterizes the Write Strategy.
type StrategyConfig struct {
	Kind            string `yaml:"kind"`
	MaxBytes        int    `yaml:"max_bytes,omitempty"`
	MaxDelayMS      int    `yaml:"max_delay_ms,omitempty"`
	FlushOnBoundary bool   `yaml:"flush_on_boundary,omitempty"`
}

// Scenario fully determines one harness run. All fields are immutable for
// the duration of the run.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description"`

	// Role is the reference engine's side (client or server).
	Role string `yaml:"role"`

	// Version selects the protocol version ("1.2" or "1.3").
	Version string `yaml:"version"`

	// Direction selects which side originates the payload.
	Direction string `yaml:"direction"`

	// Seed feeds the scenario's private random generator, so runs are
	// reproducible and parallel-safe.
	Seed int64 `yaml:"seed,omitempty"`

	// Frames is the ordered payload sequence.
	Frames []Frame `yaml:"frames"`

	// Strategy configures the write path into the pipeline.
	Strategy StrategyConfig `yaml:"strategy"`
}

// LoadScenario reads, schema-checks, and parses a scenario YAML file.
//
// Validation is layered the strict way: the embedded CUE schema rejects
// structural problems (unknown fields, wrong enums, negative lengths),
// the YAML decoder rejects typos via KnownFields, and Validate covers the
// semantic rules the schema cannot express.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	if err := schema.Validate(data); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}

	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &sc, nil
}

// Validate checks semantic rules beyond the structural schema.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch s.Role {
	case RoleClient, RoleServer:
	default:
		return fmt.Errorf("role must be %q or %q, got %q", RoleClient, RoleServer, s.Role)
	}

	switch s.Version {
	case "1.2", "1.3":
	default:
		return fmt.Errorf("version must be \"1.2\" or \"1.3\", got %q", s.Version)
	}

	switch s.Direction {
	case DirEngineToPipeline, DirPipelineToEngine:
	default:
		return fmt.Errorf("direction must be %q or %q, got %q",
			DirEngineToPipeline, DirPipelineToEngine, s.Direction)
	}

	if len(s.Frames) == 0 {
		return fmt.Errorf("frames list is required and must be non-empty")
	}
	for i, f := range s.Frames {
		if f.Len < 0 {
			return fmt.Errorf("frames[%d]: len must be non-negative", i)
		}
		if f.Flush && f.Len != 0 {
			return fmt.Errorf("frames[%d]: a flush marker carries no payload", i)
		}
	}

	return s.Strategy.validate()
}

func (c *StrategyConfig) validate() error {
	switch c.Kind {
	case StrategyImmediate:
		return nil
	case StrategyBatching:
		if c.MaxBytes < 0 || c.MaxDelayMS < 0 {
			return fmt.Errorf("strategy: max_bytes and max_delay_ms must be non-negative")
		}
		// Without any trigger, staged bytes would sit until the final
		// drain and every intermediate read would time out.
		if c.MaxBytes == 0 && c.MaxDelayMS == 0 && !c.FlushOnBoundary {
			return fmt.Errorf("strategy: batching needs max_bytes, max_delay_ms, or flush_on_boundary")
		}
		return nil
	default:
		return fmt.Errorf("strategy: unknown kind %q", c.Kind)
	}
}

// build constructs the configured Strategy bound to sink.
func (c *StrategyConfig) build(sink strategy.Sink) strategy.Strategy {
	switch c.Kind {
	case StrategyBatching:
		return strategy.NewBatching(sink, strategy.BatchingConfig{
			MaxBytes:        c.MaxBytes,
			MaxDelay:        time.Duration(c.MaxDelayMS) * time.Millisecond,
			FlushOnBoundary: c.FlushOnBoundary,
		})
	default:
		return strategy.NewImmediate(sink)
	}
}

// PayloadBytes returns the total non-flush payload size of the scenario.
func (s *Scenario) PayloadBytes() int {
	total := 0
	for _, f := range s.Frames {
		total += f.Len
	}
	return total
}

// FrameCount returns the number of payload frames (flush markers
// excluded).
func (s *Scenario) FrameCount() int {
	n := 0
	for _, f := range s.Frames {
		if !f.Flush {
			n++
		}
	}
	return n
}
