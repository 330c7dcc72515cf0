package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Step is one action of a skill pack procedure.
//
// Fields other than stepId, action and params are kept in Extra so a step
// survives a decode/encode round trip unchanged. Params is written whenever
// it is non-nil, including an empty object. Numbers keep their document
// text.
type Step struct {
	StepID string         `json:"stepId"`
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
	Extra  map[string]any `json:"-"`
}

// UnmarshalJSON decodes a step, keeping unknown fields in Extra.
func (s *Step) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var out Step
	for k, raw := range fields {
		switch k {
		case "stepId":
			if err := json.Unmarshal(raw, &out.StepID); err != nil {
				return fmt.Errorf("step stepId: %w", err)
			}
			continue
		case "action":
			if err := json.Unmarshal(raw, &out.Action); err != nil {
				return fmt.Errorf("step action: %w", err)
			}
			continue
		}

		v, err := decodeNumbers(raw)
		if err != nil {
			return fmt.Errorf("step %s: %w", k, err)
		}
		if k == "params" {
			if m, ok := v.(map[string]any); ok {
				out.Params = m
				continue
			}
		}
		// A non-object params (null) is carried as-is.
		if out.Extra == nil {
			out.Extra = make(map[string]any)
		}
		out.Extra[k] = v
	}
	*s = out
	return nil
}

// MarshalJSON encodes the step with its extra fields.
func (s Step) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(s.Extra)+3)
	for k, v := range s.Extra {
		m[k] = v
	}
	m["stepId"] = s.StepID
	m["action"] = s.Action
	if s.Params != nil {
		m["params"] = s.Params
	}
	return json.Marshal(m)
}

func decodeNumbers(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// SkillPack is an executable procedure that provides a set of capabilities.
// Steps are ordered and copied verbatim into compiled plans.
type SkillPack struct {
	Version              string   `json:"version,omitempty"`
	SkillID              string   `json:"skillId,omitempty"`
	Name                 string   `json:"name,omitempty"`
	CapabilitiesProvided []string `json:"capabilitiesProvided"`
	Steps                []Step   `json:"steps"`
}
