// Package dynval implements the dynamic config value type referenced by
// spec.md §9: connectors receive an opaque mapping and validate it in
// init() against a per-connector JSON Schema, rather than the engine
// reflecting over a concrete connector-specific struct.
package dynval

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/orgloop/engine/internal/orgerr"
)

// Value wraps an opaque, already-decoded config mapping (from YAML or JSON)
// with typed accessors, avoiding reflection-based struct binding.
type Value struct {
	raw map[string]any
}

func New(raw map[string]any) Value {
	if raw == nil {
		raw = map[string]any{}
	}
	return Value{raw: raw}
}

func (v Value) Raw() map[string]any { return v.raw }

func (v Value) String(key, def string) string {
	if s, ok := v.raw[key].(string); ok {
		return s
	}
	return def
}

func (v Value) Int(key string, def int) int {
	switch n := v.raw[key].(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return def
	}
}

func (v Value) Float(key string, def float64) float64 {
	switch n := v.raw[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}

func (v Value) Bool(key string, def bool) bool {
	if b, ok := v.raw[key].(bool); ok {
		return b
	}
	return def
}

func (v Value) Map(key string) map[string]any {
	if m, ok := v.raw[key].(map[string]any); ok {
		return m
	}
	return nil
}

// Schema compiles a JSON Schema document (itself expressed as a dynamic
// map, mirroring a tool-call parameter schema) for validating connector
// config at init().
func Schema(schemaDoc map[string]any) (*jsonschema.Schema, error) {
	if schemaDoc == nil {
		schemaDoc = map[string]any{"type": "object"}
	}
	b, err := json.Marshal(schemaDoc)
	if err != nil {
		return nil, errors.Wrap(err, "marshal schema")
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("config.json", strings.NewReader(string(b))); err != nil {
		return nil, errors.Wrap(err, "add schema resource")
	}
	return c.Compile("config.json")
}

// Validate checks v against schema, returning a ConfigInvalid orgerr on
// mismatch naming the connector component.
func Validate(component string, v Value, schema *jsonschema.Schema) error {
	if schema == nil {
		return nil
	}
	if err := schema.Validate(map[string]any(v.raw)); err != nil {
		return orgerr.New(orgerr.ConfigInvalid, component, "", err)
	}
	return nil
}
