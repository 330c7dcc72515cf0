// Package contracts defines the typed documents exchanged by the spur
// protocol: envelopes, governance policies, skill packs, robot profiles,
// adapter contracts, execution plans and enforcement results.
//
// All contracts are plain value types. The compiler, evaluator and explain
// reporter treat them as read-only inputs and never mutate them in place.
package contracts

// ProtocolVersion is the document version emitted on every compiled plan.
const ProtocolVersion = "0.1.0"

// Intent names the action an envelope requests and what it acts upon.
type Intent struct {
	Verb   string `json:"verb"`
	Target string `json:"target"`
}

// Envelope is a single task request.
//
// IssuedAt is kept as the literal timestamp string from the document so that
// a compiled plan's createdAt reproduces it byte-for-byte.
type Envelope struct {
	Version              string         `json:"version,omitempty"`
	ID                   string         `json:"id"`
	IssuedAt             string         `json:"issuedAt"`
	Intent               Intent         `json:"intent"`
	Constraints          map[string]any `json:"constraints,omitempty"`
	RequiredCapabilities []string       `json:"requiredCapabilities"`
}
