package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/josephblackelite/spur-protocol/pkg/config"
	"github.com/josephblackelite/spur-protocol/pkg/contracts"
	"github.com/josephblackelite/spur-protocol/pkg/enforcement"
	"github.com/josephblackelite/spur-protocol/pkg/explain"
	"github.com/josephblackelite/spur-protocol/pkg/loader"
	"github.com/josephblackelite/spur-protocol/pkg/observability"
)

var decisionFlags = []string{"envelope", "policy", "robot", "adapter"}

type decisionArgs struct {
	envelope, policy, robot, adapter string
	json                             bool
}

func parseDecisionArgs(name string, args []string, stderr io.Writer) (decisionArgs, bool) {
	var da decisionArgs
	cmd := flag.NewFlagSet(name, flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cmd.StringVar(&da.envelope, "envelope", "", "Path to the task envelope (REQUIRED)")
	cmd.StringVar(&da.policy, "policy", "", "Path to the governance policy (REQUIRED)")
	cmd.StringVar(&da.robot, "robot", "", "Path to the robot profile (REQUIRED)")
	cmd.StringVar(&da.adapter, "adapter", "", "Adapter id or path to an adapter contract (REQUIRED)")
	cmd.BoolVar(&da.json, "json", false, "Output as JSON")
	if err := cmd.Parse(args); err != nil {
		return da, false
	}
	if missing := missingFlags(decisionFlags, da.envelope, da.policy, da.robot, da.adapter); len(missing) > 0 {
		_, _ = fmt.Fprintf(stderr, "Missing required flags: %s\n", strings.Join(missing, " "))
		return da, false
	}
	return da, true
}

// loadDecisionInput reads the four documents an evaluation needs.
func loadDecisionInput(ctx context.Context, cfg *config.Config, da decisionArgs) (enforcement.Input, error) {
	var (
		in  enforcement.Input
		err error
	)
	if in.Envelope, err = loader.LoadEnvelope(da.envelope); err != nil {
		return in, err
	}
	if in.Policy, err = loader.LoadPolicy(da.policy); err != nil {
		return in, err
	}
	robot, err := loader.LoadRobot(da.robot)
	if err != nil {
		return in, err
	}
	in.Robot = &robot

	lookup, closeRegistry, err := openRegistry(cfg)
	if err != nil {
		return in, err
	}
	defer closeRegistry()
	in.Adapter, err = resolveAdapter(ctx, lookup, da.adapter)
	return in, err
}

// newTelemetry returns exporting telemetry when an OTLP endpoint is
// configured and a no-op provider otherwise.
func newTelemetry(ctx context.Context, cfg *config.Config) (*observability.Provider, error) {
	return observability.New(ctx, observability.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: contracts.ProtocolVersion,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Insecure:       true,
	})
}

// runExplainCmd implements `spur explain`.
//
// Exit codes:
//
//	0 = envelope is runnable
//	1 = usage or load error
//	2 = envelope is not runnable
func runExplainCmd(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	da, ok := parseDecisionArgs("explain", args, stderr)
	if !ok {
		return exitError
	}

	ctx := context.Background()
	in, err := loadDecisionInput(ctx, cfg, da)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return exitError
	}

	telemetry, err := newTelemetry(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer func() { _ = telemetry.Shutdown(ctx) }()
	telemetry.Decide(ctx, in)

	report := explain.Explain(in)
	if da.json {
		if err := writeIndented(stdout, report); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
	} else {
		_, _ = fmt.Fprintf(stdout, "ok: %t\n", report.OK)
		_, _ = fmt.Fprintf(stdout, "decision: %s\n", compactJSON(report.Decision))
		_, _ = fmt.Fprintf(stdout, "missingCapabilities: %s\n", compactJSON(report.MissingCapabilities))
		_, _ = fmt.Fprintf(stdout, "policyIssues: %s\n", compactJSON(report.PolicyIssues))
		_, _ = fmt.Fprintf(stdout, "adapterIssues: %s\n", compactJSON(report.AdapterIssues))
		_, _ = fmt.Fprintf(stdout, "suggestedFixes: %s\n", compactJSON(report.SuggestedFixes))
	}

	if !report.OK {
		return exitNegative
	}
	return exitOK
}

// runEvaluateCmd implements `spur evaluate`, printing only the decision and
// the gate that produced it.
func runEvaluateCmd(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	da, ok := parseDecisionArgs("evaluate", args, stderr)
	if !ok {
		return exitError
	}

	ctx := context.Background()
	in, err := loadDecisionInput(ctx, cfg, da)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return exitError
	}

	telemetry, err := newTelemetry(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer func() { _ = telemetry.Shutdown(ctx) }()
	v := telemetry.Decide(ctx, in)

	if da.json {
		if err := writeIndented(stdout, v); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
	} else {
		_, _ = fmt.Fprintf(stdout, "%s: %s\n", v.Decision.Mode, v.Decision.Reason)
		if v.Gate != enforcement.GateNone {
			_, _ = fmt.Fprintf(stdout, "gate: %s\n", v.Gate)
		}
	}

	if !v.Decision.Allowed() {
		return exitNegative
	}
	return exitOK
}
