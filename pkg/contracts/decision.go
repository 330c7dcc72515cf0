package contracts

// DecisionMode is the verdict of an enforcement evaluation.
type DecisionMode string

const (
	ModeAllow DecisionMode = "ALLOW"
	ModeDeny  DecisionMode = "DENY"
)

// EnforcementDecision is the binary ALLOW/DENY result with a human-readable
// reason. A DENY is an expected outcome, not an error.
type EnforcementDecision struct {
	Mode   DecisionMode `json:"mode"`
	Reason string       `json:"reason"`
}

// Allowed reports whether the decision is ALLOW.
func (d EnforcementDecision) Allowed() bool {
	return d.Mode == ModeAllow
}

// ExplainReport is the exhaustive diagnostic breakdown of a decision.
// Every list is empty (never nil) when the decision is ALLOW.
type ExplainReport struct {
	OK                  bool                `json:"ok"`
	Decision            EnforcementDecision `json:"decision"`
	MissingCapabilities []string            `json:"missingCapabilities"`
	PolicyIssues        []string            `json:"policyIssues"`
	AdapterIssues       []string            `json:"adapterIssues"`
	SuggestedFixes      []string            `json:"suggestedFixes"`
}
