// Command spur checks task envelopes against governance policy, robot
// profiles and execution adapters, and compiles runnable envelopes into
// hash-sealed execution plans.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/josephblackelite/spur-protocol/pkg/config"
	"github.com/josephblackelite/spur-protocol/pkg/contracts"
	"github.com/josephblackelite/spur-protocol/pkg/loader"
	"github.com/josephblackelite/spur-protocol/pkg/registry"
)

// Exit codes shared by every command.
const (
	exitOK       = 0
	exitError    = 1 // usage, I/O or parse error
	exitNegative = 2 // not runnable, not compilable, hash mismatch
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return exitError
	}

	cmd, rest := args[1], args[2:]
	switch cmd {
	case "help", "--help", "-h":
		printUsage(stdout)
		return exitOK
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	slog.SetDefault(cfg.Logger(stderr))

	switch cmd {
	case "doctor":
		return runDoctorCmd(rest, cfg, stdout, stderr)
	case "explain":
		return runExplainCmd(rest, cfg, stdout, stderr)
	case "evaluate":
		return runEvaluateCmd(rest, cfg, stdout, stderr)
	case "compile":
		return runCompileCmd(rest, cfg, stdout, stderr)
	case "verify":
		return runVerifyCmd(rest, stdout, stderr)
	case "adapters":
		return runAdaptersCmd(rest, cfg, stdout, stderr)
	case "serve", "server":
		return runServeCmd(rest, cfg, stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		printUsage(stderr)
		return exitError
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprint(w, `Usage:
  spur doctor [--json]
  spur explain  --envelope <path> --policy <path> --robot <path> --adapter <adapterId|path> [--json]
  spur evaluate --envelope <path> --policy <path> --robot <path> --adapter <adapterId|path> [--json]
  spur compile  --envelope <path> --policy <path> --skill <path> [--robot <path>] [--out <path>] [--store] [--export]
  spur verify   --plan <path>
  spur adapters [--filter <cel>] [--json]
  spur adapters register --file <path>
  spur adapters unregister --id <adapterId>
  spur serve    [--addr <host:port>] [--export]
  spur help

Documents may be JSON or YAML. Configuration is read from SPUR_* variables
and the YAML file named by SPUR_CONFIG.
`)
}

// openRegistry builds the adapter lookup chain: Redis, then the adapter
// directory, then the built-in adapters. The returned closer is never nil.
func openRegistry(cfg *config.Config) (registry.Lookup, func(), error) {
	var (
		chain  registry.Chain
		closer = func() {}
	)
	if cfg.RedisAddr != "" {
		r, client := registry.NewRedisFromAddr(cfg.RedisAddr, "", 0)
		chain = append(chain, r)
		closer = func() { _ = client.Close() }
	}
	if cfg.AdapterDir != "" {
		dir, err := registry.NewDirectory(cfg.AdapterDir)
		if err != nil {
			closer()
			return nil, nil, err
		}
		chain = append(chain, dir)
	}
	chain = append(chain, registry.NewDefault())
	return chain, closer, nil
}

// resolveAdapter treats arg as a registry id first and a file path second.
// A path to an existing file is loaded even when the registry is unreachable.
func resolveAdapter(ctx context.Context, lookup registry.Lookup, arg string) (contracts.AdapterContract, error) {
	a, err := lookup.Get(ctx, arg)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, registry.ErrAdapterNotFound) {
		if fi, serr := os.Stat(arg); serr != nil || !fi.Mode().IsRegular() {
			return contracts.AdapterContract{}, err
		}
	}
	a, ferr := loader.LoadAdapter(arg)
	if ferr != nil {
		if errors.Is(ferr, os.ErrNotExist) {
			return contracts.AdapterContract{}, fmt.Errorf("adapter %q is neither a registered id nor a readable file", arg)
		}
		return contracts.AdapterContract{}, ferr
	}
	return a, nil
}

// compactJSON renders v on one line without HTML escaping.
func compactJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%q", err.Error())
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// missingFlags returns "--name" for each empty value, in order.
func missingFlags(names []string, values ...string) []string {
	var out []string
	for i, v := range values {
		if v == "" {
			out = append(out, "--"+names[i])
		}
	}
	return out
}
