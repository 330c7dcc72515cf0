package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/josephblackelite/spur-protocol/pkg/config"
	"github.com/josephblackelite/spur-protocol/pkg/doctor"
	"github.com/josephblackelite/spur-protocol/pkg/store"
)

// runDoctorCmd implements `spur doctor`.
//
// Exit codes:
//
//	0 = every check passed
//	1 = at least one check failed
func runDoctorCmd(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("doctor", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var jsonOutput bool
	cmd.BoolVar(&jsonOutput, "json", false, "Output checks as JSON")
	if err := cmd.Parse(args); err != nil {
		return exitError
	}

	ctx := context.Background()
	lookup, closeRegistry, err := openRegistry(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer closeRegistry()

	opts := doctor.Options{Registry: lookup}
	if cfg.DatabaseURL != "" {
		// An unreachable store is reported as a failed check, not an error.
		s, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			opts.Store = failedPinger{err}
		} else {
			defer func() { _ = s.Close() }()
			opts.Store = s
		}
	}

	checks := doctor.Run(ctx, opts)
	if jsonOutput {
		if err := writeIndented(stdout, checks); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
	} else {
		for _, c := range checks {
			status := "[OK]"
			if !c.OK {
				status = "[FAIL]"
			}
			_, _ = fmt.Fprintf(stdout, "%s %s - %s\n", status, c.ID, c.Message)
		}
	}

	if !doctor.AllOK(checks) {
		return exitError
	}
	return exitOK
}

type failedPinger struct{ err error }

func (p failedPinger) Ping(context.Context) error { return p.err }
