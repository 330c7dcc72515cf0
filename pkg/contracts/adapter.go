package contracts

// ConstraintSupport lists which policy constraints an adapter can enforce.
type ConstraintSupport struct {
	SpeedLimit      bool `json:"speedLimit"`
	ForceLimit      bool `json:"forceLimit"`
	ZoneEnforcement bool `json:"zoneEnforcement"`
	ApprovalGates   bool `json:"approvalGates"`
}

// AuditSupport describes the audit events an adapter emits.
type AuditSupport struct {
	EmitsAuditEvents bool     `json:"emitsAuditEvents"`
	MinimumEventSet  []string `json:"minimumEventSet"`
}

// Endpoint is where an adapter accepts execution requests.
type Endpoint struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
}

// AdapterContract is the declared compatibility of an execution backend.
type AdapterContract struct {
	Version               string            `json:"version,omitempty"`
	AdapterID             string            `json:"adapterId"`
	Name                  string            `json:"name,omitempty"`
	InteropContexts       []string          `json:"interopContexts,omitempty"`
	SupportedVerbs        []string          `json:"supportedVerbs"`
	SupportedCapabilities []string          `json:"supportedCapabilities"`
	ConstraintSupport     ConstraintSupport `json:"constraintSupport"`
	AuditSupport          AuditSupport      `json:"auditSupport"`
	Endpoint              Endpoint          `json:"endpoint"`
}

// SupportsVerb reports whether verb is listed in SupportedVerbs.
func (a AdapterContract) SupportsVerb(verb string) bool {
	return Contains(a.SupportedVerbs, verb)
}

// Clone returns a deep copy that shares no slices with a. Registries hand
// out clones so callers may mutate their copy freely.
func (a AdapterContract) Clone() AdapterContract {
	c := a
	c.InteropContexts = cloneStrings(a.InteropContexts)
	c.SupportedVerbs = cloneStrings(a.SupportedVerbs)
	c.SupportedCapabilities = cloneStrings(a.SupportedCapabilities)
	c.AuditSupport.MinimumEventSet = cloneStrings(a.AuditSupport.MinimumEventSet)
	return c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
