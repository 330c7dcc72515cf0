package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/josephblackelite/spur-protocol/pkg/artifacts"
	"github.com/josephblackelite/spur-protocol/pkg/canonicalize"
	"github.com/josephblackelite/spur-protocol/pkg/compiler"
	"github.com/josephblackelite/spur-protocol/pkg/config"
	"github.com/josephblackelite/spur-protocol/pkg/contracts"
	"github.com/josephblackelite/spur-protocol/pkg/loader"
	"github.com/josephblackelite/spur-protocol/pkg/observability"
	"github.com/josephblackelite/spur-protocol/pkg/store"
)

// runCompileCmd implements `spur compile`.
//
// Exit codes:
//
//	0 = plan compiled
//	1 = usage, load or storage error
//	2 = envelope cannot be compiled
func runCompileCmd(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("compile", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		envelopePath string
		policyPath   string
		skillPath    string
		robotPath    string
		outPath      string
		save         bool
		export       bool
	)
	cmd.StringVar(&envelopePath, "envelope", "", "Path to the task envelope (REQUIRED)")
	cmd.StringVar(&policyPath, "policy", "", "Path to the governance policy (REQUIRED)")
	cmd.StringVar(&skillPath, "skill", "", "Path to the skill pack (REQUIRED)")
	cmd.StringVar(&robotPath, "robot", "", "Path to the robot profile")
	cmd.StringVar(&outPath, "out", "", "Write the plan here instead of stdout")
	cmd.BoolVar(&save, "store", false, "Save the plan to SPUR_DATABASE_URL")
	cmd.BoolVar(&export, "export", false, "Export the canonical plan to the artifact store")
	if err := cmd.Parse(args); err != nil {
		return exitError
	}
	if missing := missingFlags([]string{"envelope", "policy", "skill"}, envelopePath, policyPath, skillPath); len(missing) > 0 {
		_, _ = fmt.Fprintf(stderr, "Missing required flags: %s\n", strings.Join(missing, " "))
		return exitError
	}
	if save && cfg.DatabaseURL == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --store requires SPUR_DATABASE_URL")
		return exitError
	}

	in, err := loadCompileInput(envelopePath, policyPath, skillPath, robotPath)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return exitError
	}

	ctx := context.Background()
	telemetry, err := newTelemetry(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer func() { _ = telemetry.Shutdown(ctx) }()

	tctx, done := telemetry.Track(ctx, "compile", observability.AttrEnvelopeID.String(in.Envelope.ID))
	plan, err := compiler.Compile(in)
	done(err)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Compilation failed: %v\n", err)
		var ce *compiler.CompilationError
		if errors.As(err, &ce) {
			return exitNegative
		}
		return exitError
	}

	if save {
		if err := savePlan(tctx, cfg, *plan, stderr); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
	}
	if export {
		if err := exportPlan(tctx, cfg, telemetry, *plan, stderr); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
	}

	if outPath == "" {
		if err := writeIndented(stdout, plan); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
		return exitOK
	}

	// Same bytes --export stores.
	data, err := canonicalize.Marshal(plan)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if err := os.WriteFile(outPath, append(data, '\n'), 0o644); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: write plan: %v\n", err)
		return exitError
	}
	_, _ = fmt.Fprintf(stdout, "%s %s\n", plan.PlanID, plan.Hash)
	return exitOK
}

func loadCompileInput(envelopePath, policyPath, skillPath, robotPath string) (compiler.Input, error) {
	var (
		in  compiler.Input
		err error
	)
	if in.Envelope, err = loader.LoadEnvelope(envelopePath); err != nil {
		return in, err
	}
	if in.Policy, err = loader.LoadPolicy(policyPath); err != nil {
		return in, err
	}
	if in.Skill, err = loader.LoadSkill(skillPath); err != nil {
		return in, err
	}
	if robotPath != "" {
		robot, err := loader.LoadRobot(robotPath)
		if err != nil {
			return in, err
		}
		in.Robot = &robot
	}
	return in, nil
}

func savePlan(ctx context.Context, cfg *config.Config, plan contracts.ExecutionPlan, stderr io.Writer) error {
	s, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	rec, err := s.Save(ctx, plan)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stderr, "stored plan %s as record %s\n", plan.PlanID, rec.RecordID)
	return nil
}

func exportPlan(ctx context.Context, cfg *config.Config, telemetry *observability.Provider, plan contracts.ExecutionPlan, stderr io.Writer) error {
	ctx, done := telemetry.Track(ctx, "export", observability.AttrEnvelopeID.String(plan.SourceEnvelopeID))
	blobs, err := artifacts.NewStore(ctx, cfg)
	if err != nil {
		done(err)
		return err
	}
	digest, err := artifacts.ExportPlan(ctx, blobs, plan)
	done(err)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stderr, "exported plan %s as %s\n", plan.PlanID, digest)
	return nil
}

// runVerifyCmd implements `spur verify`.
//
// Exit codes:
//
//	0 = hash matches
//	1 = usage or load error
//	2 = hash mismatch
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var planPath string
	cmd.StringVar(&planPath, "plan", "", "Path to an execution plan (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return exitError
	}
	if planPath == "" {
		_, _ = fmt.Fprintln(stderr, "Missing required flags: --plan")
		return exitError
	}

	plan, err := loader.LoadPlan(planPath)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return exitError
	}
	if err := compiler.Verify(plan); err != nil {
		if errors.Is(err, compiler.ErrHashMismatch) {
			_, _ = fmt.Fprintf(stdout, "INVALID: %v\n", err)
			return exitNegative
		}
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	_, _ = fmt.Fprintf(stdout, "VALID: %s %s\n", plan.PlanID, plan.Hash)
	return exitOK
}
