// Package schema validates generated payloads against embedded JSON
// schemas before they are unmarshaled into domain types. Generation output
// is treated as untrusted input: shape violations surface here, enum and
// business-rule violations are corrected downstream with logged guardrails.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema names, matching files under schemas/.
const (
	MeasurementReport = "measurement"
	DamageFindings    = "findings"
	Classification    = "classification"
	Estimate          = "estimate"
)

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func compileAll() {
	compiled = make(map[string]*jsonschema.Schema)
	for _, name := range []string{MeasurementReport, DamageFindings, Classification, Estimate} {
		raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			compileErr = eris.Wrapf(err, "schema: read %s", name)
			return
		}
		compiler := jsonschema.NewCompiler()
		resource := name + ".json"
		if err := compiler.AddResource(resource, strings.NewReader(string(raw))); err != nil {
			compileErr = eris.Wrapf(err, "schema: add resource %s", name)
			return
		}
		s, err := compiler.Compile(resource)
		if err != nil {
			compileErr = eris.Wrapf(err, "schema: compile %s", name)
			return
		}
		compiled[name] = s
	}
}

// Validate checks data against the named embedded schema. A validation
// failure is returned verbatim so callers can classify it as a
// malformed-output error.
func Validate(name string, data []byte) error {
	compileOnce.Do(compileAll)
	if compileErr != nil {
		return compileErr
	}

	s, ok := compiled[name]
	if !ok {
		return eris.Errorf("schema: unknown schema %q", name)
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return eris.Wrapf(err, "schema: %s payload is not valid JSON", name)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("schema: %s payload failed validation: %w", name, err)
	}
	return nil
}
