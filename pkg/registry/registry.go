// Package registry resolves adapter contracts by id.
//
// Every implementation hands out deep copies, so a caller mutating a
// returned contract never affects the registry or other callers.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/josephblackelite/spur-protocol/pkg/contracts"
)

// ErrAdapterNotFound is returned when no adapter has the requested id.
var ErrAdapterNotFound = errors.New("adapter not found")

// Lookup is the read side of an adapter registry.
type Lookup interface {
	Get(ctx context.Context, adapterID string) (contracts.AdapterContract, error)
	// List returns every adapter sorted by id.
	List(ctx context.Context) ([]contracts.AdapterContract, error)
}

// BuiltinAdapterID is the id of the adapter shipped with every default
// registry.
const BuiltinAdapterID = "adapter-sim-http-01"

var builtin = contracts.AdapterContract{
	Version:               contracts.ProtocolVersion,
	AdapterID:             BuiltinAdapterID,
	Name:                  "Simulation + HTTP Adapter",
	InteropContexts:       []string{"SIM", "HTTP_API"},
	SupportedVerbs:        []string{"clean", "navigate", "dock"},
	SupportedCapabilities: []string{"mapping", "obstacle-avoidance", "task-queue"},
	ConstraintSupport: contracts.ConstraintSupport{
		SpeedLimit:      true,
		ForceLimit:      false,
		ZoneEnforcement: true,
		ApprovalGates:   true,
	},
	AuditSupport: contracts.AuditSupport{
		EmitsAuditEvents: true,
		MinimumEventSet:  []string{"PLAN_STARTED", "STEP_STARTED", "STEP_COMPLETED", "PLAN_COMPLETED"},
	},
	Endpoint: contracts.Endpoint{
		Type: "http",
		URI:  "https://adapter.example.internal/v1/execute",
	},
}

// Builtin returns copies of the adapters shipped with the protocol.
func Builtin() []contracts.AdapterContract {
	return []contracts.AdapterContract{builtin.Clone()}
}

// InMemory is a thread-safe in-memory registry.
type InMemory struct {
	mu       sync.RWMutex
	adapters map[string]contracts.AdapterContract
}

// NewInMemory creates a registry holding adapters. Later entries replace
// earlier ones with the same id.
func NewInMemory(adapters ...contracts.AdapterContract) *InMemory {
	r := &InMemory{adapters: make(map[string]contracts.AdapterContract, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.AdapterID] = a.Clone()
	}
	return r
}

// NewDefault creates an in-memory registry seeded with the builtin adapters.
func NewDefault() *InMemory {
	return NewInMemory(Builtin()...)
}

// Register adds or replaces an adapter.
func (r *InMemory) Register(a contracts.AdapterContract) error {
	if a.AdapterID == "" {
		return errors.New("registry: adapter id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.AdapterID] = a.Clone()
	return nil
}

func (r *InMemory) Get(_ context.Context, adapterID string) (contracts.AdapterContract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[adapterID]
	if !ok {
		return contracts.AdapterContract{}, fmt.Errorf("%w: %s", ErrAdapterNotFound, adapterID)
	}
	return a.Clone(), nil
}

func (r *InMemory) List(_ context.Context) ([]contracts.AdapterContract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]contracts.AdapterContract, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a.Clone())
	}
	sortByID(out)
	return out, nil
}

func sortByID(adapters []contracts.AdapterContract) {
	sort.Slice(adapters, func(i, j int) bool {
		return adapters[i].AdapterID < adapters[j].AdapterID
	})
}
