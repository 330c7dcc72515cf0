package contracts

// LimitSpeed is the only limit key the enforcement engine recognizes.
const LimitSpeed = "speedLimit"

// Policy is the governance ruleset in force (GovernancePolicy on the wire).
//
// AllowedVerbs, Limits and Audit are author-controlled and opaque; the engine
// only performs membership and presence checks on them.
type Policy struct {
	Version      string         `json:"version,omitempty"`
	PolicyID     string         `json:"policyId"`
	AllowedVerbs []string       `json:"allowedVerbs"`
	Limits       map[string]any `json:"limits"`
	Audit        map[string]any `json:"audit"`
}

// AllowsVerb reports whether verb is listed in AllowedVerbs.
func (p Policy) AllowsVerb(verb string) bool {
	return Contains(p.AllowedVerbs, verb)
}

// HasSpeedLimit reports whether a speed limit is configured. Only the
// presence of the key matters; its value is not inspected.
func (p Policy) HasSpeedLimit() bool {
	_, ok := p.Limits[LimitSpeed]
	return ok
}
