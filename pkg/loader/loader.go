// Package loader reads spur documents from disk, validates them against
// their schema and decodes them into typed contracts.
//
// Documents may be JSON or YAML (.yaml, .yml). YAML is lowered to JSON
// before validation so both forms are checked by the same schema.
package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/josephblackelite/spur-protocol/pkg/contracts"
	"github.com/josephblackelite/spur-protocol/pkg/schema"
)

// ReadJSON returns the document at path as JSON bytes, converting YAML
// when the extension says so.
func ReadJSON(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !IsYAML(path) {
		return data, nil
	}
	out, err := YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

// IsYAML reports whether path has a YAML extension.
func IsYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// YAMLToJSON converts a single YAML document into its JSON equivalent.
func YAMLToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	normalized, err := jsonShape(doc)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

// jsonShape rewrites YAML-decoded values into types encoding/json accepts.
func jsonShape(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			n, err := jsonShape(val)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v", k)
			}
			n, err := jsonShape(val)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			n, err := jsonShape(val)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return v, nil
	}
}

// Decode validates data against the schema for kind and decodes it into T.
// Numbers inside free-form maps keep their document text.
func Decode[T any](kind schema.Kind, data []byte) (T, error) {
	var out T
	if err := schema.Validate(kind, data); err != nil {
		return out, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("decode %s: %w", kind, err)
	}
	return out, nil
}

func load[T any](kind schema.Kind, path string) (T, error) {
	var zero T
	data, err := ReadJSON(path)
	if err != nil {
		return zero, err
	}
	out, err := Decode[T](kind, data)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// LoadEnvelope loads and validates an envelope document.
func LoadEnvelope(path string) (contracts.Envelope, error) {
	return load[contracts.Envelope](schema.KindEnvelope, path)
}

// LoadPolicy loads and validates a governance policy document.
func LoadPolicy(path string) (contracts.Policy, error) {
	return load[contracts.Policy](schema.KindPolicy, path)
}

// LoadSkill loads and validates a skill pack document.
func LoadSkill(path string) (contracts.SkillPack, error) {
	return load[contracts.SkillPack](schema.KindSkill, path)
}

// LoadRobot loads and validates a robot profile document.
func LoadRobot(path string) (contracts.RobotProfile, error) {
	return load[contracts.RobotProfile](schema.KindRobot, path)
}

// LoadAdapter loads and validates an adapter contract document.
func LoadAdapter(path string) (contracts.AdapterContract, error) {
	return load[contracts.AdapterContract](schema.KindAdapter, path)
}

// LoadPlan loads and validates an execution plan document. The hash is not
// checked here; see compiler.Verify.
func LoadPlan(path string) (contracts.ExecutionPlan, error) {
	return load[contracts.ExecutionPlan](schema.KindPlan, path)
}
