// Package doctor runs environment and configuration health checks.
package doctor

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/josephblackelite/spur-protocol/pkg/contracts"
	"github.com/josephblackelite/spur-protocol/pkg/registry"
	"github.com/josephblackelite/spur-protocol/pkg/schema"
)

const (
	// MinGoVersion is the oldest toolchain the module supports.
	MinGoVersion = "1.21"
	// ProtocolConstraint is the adapter contract version range this build
	// understands.
	ProtocolConstraint = "~0.1"
)

// Check is the outcome of one diagnostic.
type Check struct {
	ID      string         `json:"id"`
	OK      bool           `json:"ok"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Pinger is anything with a reachability probe, such as a plan store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures Run. The zero value checks the built-in registry.
type Options struct {
	Registry registry.Lookup
	// Store is probed when non-nil.
	Store Pinger
	// GoVersion overrides runtime.Version() in tests.
	GoVersion string
}

// Run executes every check in a fixed order.
func Run(ctx context.Context, opts Options) []Check {
	if opts.Registry == nil {
		opts.Registry = registry.NewDefault()
	}
	if opts.GoVersion == "" {
		opts.GoVersion = runtime.Version()
	}

	checks := []Check{checkGoVersion(opts.GoVersion)}

	adapters, err := opts.Registry.List(ctx)
	checks = append(checks, checkRegistryLoad(adapters, err))
	for _, a := range adapters {
		checks = append(checks, CheckAdapterContract(a))
	}
	checks = append(checks, checkProtocolVersion(adapters), checkSchemas())

	if opts.Store != nil {
		checks = append(checks, checkStore(ctx, opts.Store))
	}
	return checks
}

// AllOK reports whether every check passed.
func AllOK(checks []Check) bool {
	for _, c := range checks {
		if !c.OK {
			return false
		}
	}
	return true
}

func checkGoVersion(raw string) Check {
	c := Check{
		ID:   "runtime.go.version",
		Data: map[string]any{"version": raw, "minimum": MinGoVersion},
	}
	v, err := semver.NewVersion(strings.TrimPrefix(raw, "go"))
	if err != nil {
		c.Message = fmt.Sprintf("Go version %s could not be parsed", raw)
		c.Data["error"] = err.Error()
		return c
	}
	floor := semver.MustParse(MinGoVersion)
	c.OK = !v.LessThan(floor)
	if c.OK {
		c.Message = fmt.Sprintf("Go version %s is supported", raw)
	} else {
		c.Message = fmt.Sprintf("Go version %s is below %s", raw, MinGoVersion)
	}
	return c
}

func checkRegistryLoad(adapters []contracts.AdapterContract, err error) Check {
	c := Check{ID: "adapters.registry.load", Data: map[string]any{"count": len(adapters)}}
	switch {
	case err != nil:
		c.Message = "Adapter registry failed to load"
		c.Data["error"] = err.Error()
	case len(adapters) == 0:
		c.Message = "Adapter registry is empty"
	default:
		c.OK = true
		c.Message = fmt.Sprintf("Loaded %d adapter(s)", len(adapters))
	}
	return c
}

// CheckAdapterContract verifies the fields an executor needs to dispatch to
// and audit an adapter.
func CheckAdapterContract(a contracts.AdapterContract) Check {
	ok := a.AdapterID != "" &&
		a.Endpoint.Type != "" &&
		a.Endpoint.URI != "" &&
		len(a.InteropContexts) > 0 &&
		a.AuditSupport.EmitsAuditEvents

	msg := fmt.Sprintf("Adapter '%s' contract is complete", a.AdapterID)
	if !ok {
		msg = fmt.Sprintf("Adapter '%s' contract is missing required fields", a.AdapterID)
	}
	return Check{
		ID:      "adapter.contract." + a.AdapterID,
		OK:      ok,
		Message: msg,
		Data: map[string]any{
			"adapterId":            a.AdapterID,
			"endpointType":         a.Endpoint.Type,
			"endpointUri":          a.Endpoint.URI,
			"interopContextsCount": len(a.InteropContexts),
			"emitsAuditEvents":     a.AuditSupport.EmitsAuditEvents,
		},
	}
}

func checkProtocolVersion(adapters []contracts.AdapterContract) Check {
	constraint, _ := semver.NewConstraint(ProtocolConstraint)

	var incompatible []string
	for _, a := range adapters {
		v, err := semver.NewVersion(a.Version)
		if err != nil || !constraint.Check(v) {
			incompatible = append(incompatible, fmt.Sprintf("%s@%s", a.AdapterID, a.Version))
		}
	}

	c := Check{
		ID:   "protocol.version",
		OK:   len(incompatible) == 0,
		Data: map[string]any{"constraint": ProtocolConstraint, "protocol": contracts.ProtocolVersion},
	}
	if c.OK {
		c.Message = fmt.Sprintf("All adapters satisfy protocol %s", ProtocolConstraint)
	} else {
		c.Message = fmt.Sprintf("Adapters outside protocol %s: %s", ProtocolConstraint, strings.Join(incompatible, ", "))
		c.Data["incompatible"] = incompatible
	}
	return c
}

func checkSchemas() Check {
	c := Check{ID: "schemas.compile", Data: map[string]any{"count": len(schema.Kinds())}}
	if _, err := schema.New(); err != nil {
		c.Message = "Embedded schemas failed to compile"
		c.Data["error"] = err.Error()
		return c
	}
	c.OK = true
	c.Message = fmt.Sprintf("Compiled %d schema(s)", len(schema.Kinds()))
	return c
}

func checkStore(ctx context.Context, p Pinger) Check {
	if err := p.Ping(ctx); err != nil {
		return Check{
			ID:      "store.reachable",
			Message: "Plan store is unreachable",
			Data:    map[string]any{"error": err.Error()},
		}
	}
	return Check{ID: "store.reachable", OK: true, Message: "Plan store is reachable"}
}
