package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/josephblackelite/spur-protocol/pkg/contracts"
)

// Filter selects adapters with a CEL boolean expression over the variable
// adapter, which holds the contract in its JSON shape, e.g.
//
//	"clean" in adapter.supportedVerbs && adapter.constraintSupport.speedLimit
type Filter struct {
	expr string
	prg  cel.Program
}

// NewFilter compiles expr.
func NewFilter(expr string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("adapter", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile filter: %w", issues.Err())
	}
	prg, err := env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program filter: %w", err)
	}
	return &Filter{expr: expr, prg: prg}, nil
}

// Match reports whether a satisfies the expression.
func (f *Filter) Match(a contracts.AdapterContract) (bool, error) {
	input, err := activation(a)
	if err != nil {
		return false, err
	}
	out, _, err := f.prg.Eval(map[string]any{"adapter": input})
	if err != nil {
		return false, fmt.Errorf("eval filter %q on %s: %w", f.expr, a.AdapterID, err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q: result not bool", f.expr)
	}
	return val, nil
}

// Select returns the adapters of l matching expr.
func Select(ctx context.Context, l Lookup, expr string) ([]contracts.AdapterContract, error) {
	f, err := NewFilter(expr)
	if err != nil {
		return nil, err
	}
	all, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []contracts.AdapterContract{}
	for _, a := range all {
		ok, err := f.Match(a)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func activation(a contracts.AdapterContract) (map[string]any, error) {
	// Absent lists become empty so membership tests never hit null.
	if a.InteropContexts == nil {
		a.InteropContexts = []string{}
	}
	if a.SupportedVerbs == nil {
		a.SupportedVerbs = []string{}
	}
	if a.SupportedCapabilities == nil {
		a.SupportedCapabilities = []string{}
	}
	if a.AuditSupport.MinimumEventSet == nil {
		a.AuditSupport.MinimumEventSet = []string{}
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
