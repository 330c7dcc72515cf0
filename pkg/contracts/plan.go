package contracts

// ExecutionPlan is the compiled, hash-sealed artifact ready for dispatch.
// Hash covers every other field and is excluded from its own input.
type ExecutionPlan struct {
	Version           string         `json:"version"`
	PlanID            string         `json:"planId"`
	SourceEnvelopeID  string         `json:"sourceEnvelopeId"`
	CreatedAt         string         `json:"createdAt"`
	Steps             []Step         `json:"steps"`
	AuditRequirements map[string]any `json:"auditRequirements"`
	Hash              string         `json:"hash"`
}

// PlanPayload is the hashed portion of an ExecutionPlan.
type PlanPayload struct {
	Version           string         `json:"version"`
	PlanID            string         `json:"planId"`
	SourceEnvelopeID  string         `json:"sourceEnvelopeId"`
	CreatedAt         string         `json:"createdAt"`
	Steps             []Step         `json:"steps"`
	AuditRequirements map[string]any `json:"auditRequirements"`
}

// Payload returns the plan without its hash.
func (p ExecutionPlan) Payload() PlanPayload {
	return PlanPayload{
		Version:           p.Version,
		PlanID:            p.PlanID,
		SourceEnvelopeID:  p.SourceEnvelopeID,
		CreatedAt:         p.CreatedAt,
		Steps:             p.Steps,
		AuditRequirements: p.AuditRequirements,
	}
}

// Seal attaches hash to the payload, producing a complete plan.
func (p PlanPayload) Seal(hash string) ExecutionPlan {
	return ExecutionPlan{
		Version:           p.Version,
		PlanID:            p.PlanID,
		SourceEnvelopeID:  p.SourceEnvelopeID,
		CreatedAt:         p.CreatedAt,
		Steps:             p.Steps,
		AuditRequirements: p.AuditRequirements,
		Hash:              hash,
	}
}
