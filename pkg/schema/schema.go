// Package schema validates spur documents against their embedded JSON
// Schemas (Draft 2020-12).
//
// Schema checks are structural only. After a document passes its schema,
// identifier fields (verbs and capabilities) are also linted for Unicode
// NFC normalization, because the enforcement core compares identifiers
// byte-for-byte and two visually identical identifiers in different forms
// would never match.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// Kind names a document schema.
type Kind string

const (
	KindEnvelope Kind = "SpurEnvelope"
	KindSkill    Kind = "SkillPack"
	KindPolicy   Kind = "GovernancePolicy"
	KindRobot    Kind = "RobotProfile"
	KindAdapter  Kind = "AdapterContract"
	KindPlan     Kind = "ExecutionPlan"
)

// Kinds lists every known schema in a stable order.
func Kinds() []Kind {
	return []Kind{KindEnvelope, KindSkill, KindPolicy, KindRobot, KindAdapter, KindPlan}
}

const baseURL = "https://spur.schemas.local/"

func (k Kind) url() string {
	return baseURL + string(k) + ".schema.json"
}

// Cause is a single validation failure at an instance location.
type Cause struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError lists every failure found in a document.
type ValidationError struct {
	Schema Kind    `json:"schema"`
	Causes []Cause `json:"causes"`
}

func (e *ValidationError) Error() string {
	if len(e.Causes) == 0 {
		return fmt.Sprintf("%s validation failed: unknown validation error", e.Schema)
	}
	parts := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		parts[i] = c.Path + ": " + c.Message
	}
	return fmt.Sprintf("%s validation failed: %s", e.Schema, strings.Join(parts, "; "))
}

// Validator holds the compiled schemas. It is safe for concurrent use.
type Validator struct {
	schemas map[Kind]*jsonschema.Schema
}

// New compiles every embedded schema.
func New() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true

	for _, k := range Kinds() {
		data, err := schemaFS.ReadFile("schemas/" + string(k) + ".schema.json")
		if err != nil {
			return nil, fmt.Errorf("schema %s load failed: %w", k, err)
		}
		if err := c.AddResource(k.url(), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("schema %s load failed: %w", k, err)
		}
	}

	v := &Validator{schemas: make(map[Kind]*jsonschema.Schema, len(Kinds()))}
	for _, k := range Kinds() {
		compiled, err := c.Compile(k.url())
		if err != nil {
			return nil, fmt.Errorf("schema %s compile failed: %w", k, err)
		}
		v.schemas[k] = compiled
	}
	return v, nil
}

var (
	defaultOnce      sync.Once
	defaultValidator *Validator
	defaultErr       error
)

// Default returns a process-wide Validator, compiling the schemas on first use.
func Default() (*Validator, error) {
	defaultOnce.Do(func() {
		defaultValidator, defaultErr = New()
	})
	return defaultValidator, defaultErr
}

// Validate checks doc against the schema for kind using the default
// Validator.
func Validate(kind Kind, doc any) error {
	v, err := Default()
	if err != nil {
		return err
	}
	return v.Validate(kind, doc)
}

// ValidateJSON decodes data and validates it against the schema for kind.
func (v *Validator) ValidateJSON(kind Kind, data []byte) error {
	return v.Validate(kind, data)
}

// Validate checks doc against the schema for kind. doc may be a decoded JSON
// value or any Go value that marshals to JSON (typed contracts included).
// A failing document yields a *ValidationError.
func (v *Validator) Validate(kind Kind, doc any) error {
	s, ok := v.schemas[kind]
	if !ok {
		return fmt.Errorf("schema: unknown kind %q", kind)
	}

	generic, err := toGeneric(doc)
	if err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}

	if err := s.Validate(generic); err != nil {
		ve, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return fmt.Errorf("%s validation failed: %w", kind, err)
		}
		return &ValidationError{Schema: kind, Causes: leaves(ve)}
	}

	if causes := lintIdentifiers(kind, generic); len(causes) > 0 {
		return &ValidationError{Schema: kind, Causes: causes}
	}
	return nil
}

// leaves flattens the error tree to the failures that have no further causes.
func leaves(ve *jsonschema.ValidationError) []Cause {
	var out []Cause
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			path := e.InstanceLocation
			if path == "" {
				path = "/"
			}
			out = append(out, Cause{Path: path, Message: e.Message})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func toGeneric(doc any) (any, error) {
	var raw []byte
	switch d := doc.(type) {
	case []byte:
		raw = d
	case json.RawMessage:
		raw = d
	}
	if raw != nil {
		out, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		return out, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return decode(data)
}

func decode(data []byte) (any, error) {
	var out any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
