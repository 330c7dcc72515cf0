package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/josephblackelite/spur-protocol/pkg/config"
	"github.com/josephblackelite/spur-protocol/pkg/contracts"
	"github.com/josephblackelite/spur-protocol/pkg/loader"
	"github.com/josephblackelite/spur-protocol/pkg/registry"
)

// runAdaptersCmd implements `spur adapters` and its register and
// unregister subcommands.
func runAdaptersCmd(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "register":
			return runAdaptersRegister(args[1:], cfg, stdout, stderr)
		case "unregister":
			return runAdaptersUnregister(args[1:], cfg, stdout, stderr)
		}
	}

	cmd := flag.NewFlagSet("adapters", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		filter     string
		jsonOutput bool
	)
	cmd.StringVar(&filter, "filter", "", "CEL expression over adapter, e.g. \"'dock' in adapter.supportedVerbs\"")
	cmd.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	if err := cmd.Parse(args); err != nil {
		return exitError
	}

	lookup, closeRegistry, err := openRegistry(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer closeRegistry()

	ctx := context.Background()
	var list []contracts.AdapterContract
	if filter == "" {
		list, err = lookup.List(ctx)
	} else {
		list, err = registry.Select(ctx, lookup, filter)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	if jsonOutput {
		if err := writeIndented(stdout, list); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
		return exitOK
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tVERSION\tVERBS\tCAPABILITIES\tENDPOINT")
	for _, a := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.AdapterID,
			a.Version,
			strings.Join(a.SupportedVerbs, ","),
			strings.Join(a.SupportedCapabilities, ","),
			a.Endpoint.URI,
		)
	}
	if err := tw.Flush(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	return exitOK
}

// runAdaptersRegister publishes an adapter contract to the Redis registry.
func runAdaptersRegister(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("adapters register", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var file string
	cmd.StringVar(&file, "file", "", "Path to an adapter contract (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return exitError
	}
	if file == "" {
		_, _ = fmt.Fprintln(stderr, "Missing required flags: --file")
		return exitError
	}
	if cfg.RedisAddr == "" {
		_, _ = fmt.Fprintln(stderr, "Error: adapters register requires SPUR_REDIS_ADDR")
		return exitError
	}

	a, err := loader.LoadAdapter(file)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return exitError
	}

	r, client := registry.NewRedisFromAddr(cfg.RedisAddr, "", 0)
	defer func() { _ = client.Close() }()
	if err := r.Put(context.Background(), a); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	_, _ = fmt.Fprintf(stdout, "registered %s@%s\n", a.AdapterID, a.Version)
	return exitOK
}

// runAdaptersUnregister removes an adapter contract from the Redis registry.
func runAdaptersUnregister(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("adapters unregister", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var id string
	cmd.StringVar(&id, "id", "", "Adapter id to remove (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return exitError
	}
	if id == "" {
		_, _ = fmt.Fprintln(stderr, "Missing required flags: --id")
		return exitError
	}
	if cfg.RedisAddr == "" {
		_, _ = fmt.Fprintln(stderr, "Error: adapters unregister requires SPUR_REDIS_ADDR")
		return exitError
	}

	r, client := registry.NewRedisFromAddr(cfg.RedisAddr, "", 0)
	defer func() { _ = client.Close() }()
	if err := r.Delete(context.Background(), id); err != nil {
		if errors.Is(err, registry.ErrAdapterNotFound) {
			_, _ = fmt.Fprintf(stderr, "Error: adapter %q is not registered\n", id)
			return exitNegative
		}
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	_, _ = fmt.Fprintf(stdout, "unregistered %s\n", id)
	return exitOK
}
