// Package schema validates scenario YAML against an embedded CUE schema.
//
// The schema is the structural gatekeeper — field names, enum values,
// non-negative lengths — applied before the YAML is decoded into Go
// types, so a typo'd scenario fails with a schema error instead of a
// half-populated struct.
package schema

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed scenario.cue
var schemaSource string

var (
	compileOnce sync.Once
	scenarioDef cue.Value
	compileErr  error
	cuectx      *cue.Context
)

// compile builds the #Scenario definition once per process. The schema is
// embedded and constant, so a compile failure is a programming error
// surfaced on first use.
func compile() (cue.Value, error) {
	compileOnce.Do(func() {
		cuectx = cuecontext.New()
		v := cuectx.CompileString(schemaSource, cue.Filename("scenario.cue"))
		if err := v.Err(); err != nil {
			compileErr = fmt.Errorf("schema: compile embedded schema: %w", err)
			return
		}
		scenarioDef = v.LookupPath(cue.ParsePath("#Scenario"))
		if err := scenarioDef.Err(); err != nil {
			compileErr = fmt.Errorf("schema: missing #Scenario definition: %w", err)
		}
	})
	return scenarioDef, compileErr
}

// Validate checks scenario YAML against the #Scenario definition.
// Returns a descriptive error naming every violated constraint.
func Validate(data []byte) error {
	def, err := compile()
	if err != nil {
		return err
	}

	file, err := cueyaml.Extract("scenario.yaml", data)
	if err != nil {
		return fmt.Errorf("schema: parse YAML: %w", err)
	}

	doc := cuectx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("schema: build document: %w", err)
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema: %s", cueerrors.Details(err, nil))
	}
	return nil
}
