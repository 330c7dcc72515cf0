package contracts

// RobotProfile declares what a physical or simulated actor can do.
type RobotProfile struct {
	Version      string         `json:"version,omitempty"`
	RobotID      string         `json:"robotId"`
	Capabilities []string       `json:"capabilities"`
	Limits       map[string]any `json:"limits,omitempty"`
	Adapters     []string       `json:"adapters,omitempty"`
}

// CapabilitySet returns the declared capabilities, or an empty set when the
// profile is nil or declares none.
func (r *RobotProfile) CapabilitySet() []string {
	if r == nil || r.Capabilities == nil {
		return []string{}
	}
	return r.Capabilities
}
