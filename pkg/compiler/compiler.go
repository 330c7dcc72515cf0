// Package compiler turns an admissible envelope into a hash-sealed
// ExecutionPlan.
//
// Admissibility is checked in a fixed order and the first failure wins:
//  1. the envelope verb must be allowed by the policy
//  2. the skill must provide every required capability
//  3. the robot must declare every required capability
//
// Adapter compatibility is deliberately not checked here; it is a
// dispatch-time concern handled by package enforcement.
package compiler

import (
	"fmt"

	"github.com/josephblackelite/spur-protocol/pkg/canonicalize"
	"github.com/josephblackelite/spur-protocol/pkg/contracts"
)

// Input bundles the documents a compilation reads. Robot may be nil, in which
// case it is treated as declaring no capabilities.
type Input struct {
	Envelope contracts.Envelope
	Skill    contracts.SkillPack
	Policy   contracts.Policy
	Robot    *contracts.RobotProfile
}

// Compile validates in and returns the sealed plan. On an admissibility
// failure the error is a *CompilationError.
func Compile(in Input) (*contracts.ExecutionPlan, error) {
	env := in.Envelope
	required := env.RequiredCapabilities

	if !in.Policy.AllowsVerb(env.Intent.Verb) {
		return nil, &CompilationError{
			Kind:     KindVerbNotAllowed,
			Verb:     env.Intent.Verb,
			PolicyID: in.Policy.PolicyID,
		}
	}

	if !contracts.Covers(in.Skill.CapabilitiesProvided, required) {
		return nil, &CompilationError{
			Kind:    KindSkillCapabilityGap,
			Missing: contracts.Missing(required, in.Skill.CapabilitiesProvided),
		}
	}

	robotCaps := in.Robot.CapabilitySet()
	if !contracts.Covers(robotCaps, required) {
		return nil, &CompilationError{
			Kind:    KindRobotCapabilityGap,
			Missing: contracts.Missing(required, robotCaps),
		}
	}

	audit := in.Policy.Audit
	if audit == nil {
		audit = map[string]any{}
	}

	payload := contracts.PlanPayload{
		Version:           contracts.ProtocolVersion,
		PlanID:            PlanID(env.ID),
		SourceEnvelopeID:  env.ID,
		CreatedAt:         env.IssuedAt,
		Steps:             in.Skill.Steps,
		AuditRequirements: audit,
	}

	hash, err := hashPayload(payload)
	if err != nil {
		return nil, err
	}

	plan := payload.Seal(hash)
	return &plan, nil
}

// PlanID derives the plan identifier from an envelope id.
func PlanID(envelopeID string) string {
	return envelopeID + "-plan"
}

func hashPayload(p contracts.PlanPayload) (string, error) {
	hash, err := canonicalize.CanonicalHash(p)
	if err != nil {
		return "", fmt.Errorf("compiler: plan hash failed: %w", err)
	}
	return hash, nil
}
