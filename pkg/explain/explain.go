// Package explain turns an enforcement decision into an actionable report.
//
// On ALLOW the report is empty. On DENY every gate is re-checked
// independently so the report lists all blocking issues, not only the one
// the evaluator stopped at, together with one suggested fix per issue.
package explain

import (
	"fmt"

	"github.com/josephblackelite/spur-protocol/pkg/contracts"
	"github.com/josephblackelite/spur-protocol/pkg/enforcement"
)

// Explain evaluates in and, when it is not runnable, enumerates why.
// It never fails.
func Explain(in enforcement.Input) contracts.ExplainReport {
	decision := enforcement.Evaluate(in)
	report := contracts.ExplainReport{
		OK:                  decision.Allowed(),
		Decision:            decision,
		MissingCapabilities: []string{},
		PolicyIssues:        []string{},
		AdapterIssues:       []string{},
		SuggestedFixes:      []string{},
	}
	if report.OK {
		return report
	}

	verb := in.Envelope.Intent.Verb
	required := in.Envelope.RequiredCapabilities

	verbAllowed := in.Policy.AllowsVerb(verb)
	adapterVerb := in.Adapter.SupportsVerb(verb)
	adapterMissing := contracts.Missing(required, in.Adapter.SupportedCapabilities)
	speedUnenforceable := in.Policy.HasSpeedLimit() && !in.Adapter.ConstraintSupport.SpeedLimit

	report.MissingCapabilities = contracts.Missing(required, in.Robot.CapabilitySet())

	if !verbAllowed {
		report.PolicyIssues = append(report.PolicyIssues,
			fmt.Sprintf("Verb '%s' is not allowed by GovernancePolicy.allowedVerbs", verb))
	}

	if !adapterVerb {
		report.AdapterIssues = append(report.AdapterIssues,
			fmt.Sprintf("Adapter does not support verb '%s'", verb))
	}
	for _, c := range adapterMissing {
		report.AdapterIssues = append(report.AdapterIssues,
			fmt.Sprintf("Adapter does not support capability '%s'", c))
	}
	if speedUnenforceable {
		report.AdapterIssues = append(report.AdapterIssues, "Adapter cannot enforce policy speed limit")
	}

	// Fix order is fixed: robot, policy, adapter verb, adapter capabilities, constraints.
	fixes := report.SuggestedFixes
	for _, c := range report.MissingCapabilities {
		fixes = append(fixes, fmt.Sprintf("Add capability '%s' to RobotProfile.capabilities", c))
	}
	if !verbAllowed {
		fixes = append(fixes, fmt.Sprintf("Add verb '%s' to GovernancePolicy.allowedVerbs", verb))
	}
	if !adapterVerb {
		fixes = append(fixes, fmt.Sprintf("Use an adapter that supports verb '%s'", verb))
	}
	for _, c := range adapterMissing {
		fixes = append(fixes, fmt.Sprintf("Use an adapter that supports capability '%s'", c))
	}
	if speedUnenforceable {
		fixes = append(fixes, "Use an adapter with constraintSupport.speedLimit = true")
	}
	report.SuggestedFixes = fixes

	return report
}
