// Package enforcement decides whether an envelope is runnable against a
// policy, a robot profile and an execution adapter.
//
// Gates run in a fixed order and the first failure wins:
//  1. policy verb
//  2. robot capability
//  3. adapter compatibility (verb and capabilities)
//  4. constraint enforceability (speed limit)
//
// Evaluation is pure: no I/O, no shared state, safe for concurrent use.
package enforcement

import (
	"fmt"
	"strings"

	"github.com/josephblackelite/spur-protocol/pkg/contracts"
)

// Gate identifies the check that produced a DENY.
type Gate string

const (
	GateNone                     Gate = ""
	GatePolicyVerb               Gate = "policy_verb"
	GateRobotCapability          Gate = "robot_capability"
	GateAdapterCompatibility     Gate = "adapter_compatibility"
	GateConstraintEnforceability Gate = "constraint_enforceability"
)

// ReasonRunnable is the ALLOW reason.
const ReasonRunnable = "Envelope is runnable with the provided policy, robot, and adapter"

// Input bundles the documents an evaluation reads. Robot may be nil, in
// which case it declares no capabilities.
type Input struct {
	Envelope contracts.Envelope
	Policy   contracts.Policy
	Robot    *contracts.RobotProfile
	Adapter  contracts.AdapterContract
}

// Verdict is a decision plus the gate that produced it. Gate is GateNone
// on ALLOW.
type Verdict struct {
	Decision contracts.EnforcementDecision `json:"decision"`
	Gate     Gate                          `json:"gate,omitempty"`
}

type gate struct {
	id    Gate
	check func(Input) (reason string, ok bool)
}

var gates = []gate{
	{GatePolicyVerb, checkPolicyVerb},
	{GateRobotCapability, checkRobotCapability},
	{GateAdapterCompatibility, checkAdapterCompatibility},
	{GateConstraintEnforceability, checkConstraintEnforceability},
}

// Gates returns the gate identifiers in evaluation order.
func Gates() []Gate {
	out := make([]Gate, len(gates))
	for i, g := range gates {
		out[i] = g.id
	}
	return out
}

// Assess runs the gates in order and reports the first failure.
func Assess(in Input) Verdict {
	for _, g := range gates {
		if reason, ok := g.check(in); !ok {
			return Verdict{
				Decision: contracts.EnforcementDecision{Mode: contracts.ModeDeny, Reason: reason},
				Gate:     g.id,
			}
		}
	}
	return Verdict{
		Decision: contracts.EnforcementDecision{Mode: contracts.ModeAllow, Reason: ReasonRunnable},
	}
}

// Evaluate returns the ALLOW/DENY decision for in.
func Evaluate(in Input) contracts.EnforcementDecision {
	return Assess(in).Decision
}

func checkPolicyVerb(in Input) (string, bool) {
	verb := in.Envelope.Intent.Verb
	if in.Policy.AllowsVerb(verb) {
		return "", true
	}
	return fmt.Sprintf("Verb '%s' is not allowed by policy '%s'", verb, in.Policy.PolicyID), false
}

func checkRobotCapability(in Input) (string, bool) {
	missing := contracts.Missing(in.Envelope.RequiredCapabilities, in.Robot.CapabilitySet())
	if len(missing) == 0 {
		return "", true
	}
	return "Robot is missing required capabilities: " + strings.Join(missing, ", "), false
}

func checkAdapterCompatibility(in Input) (string, bool) {
	if in.Adapter.SupportsVerb(in.Envelope.Intent.Verb) &&
		contracts.Covers(in.Adapter.SupportedCapabilities, in.Envelope.RequiredCapabilities) {
		return "", true
	}
	return "Adapter cannot execute the requested envelope requirements", false
}

func checkConstraintEnforceability(in Input) (string, bool) {
	if !in.Policy.HasSpeedLimit() || in.Adapter.ConstraintSupport.SpeedLimit {
		return "", true
	}
	return "Policy speed limit cannot be enforced by adapter", false
}
