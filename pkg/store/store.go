// Package store persists compiled execution plans.
//
// Plans are stored as their canonical JSON bytes. Reads recompute the plan
// hash and refuse to return a plan whose contents no longer match it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/josephblackelite/spur-protocol/pkg/contracts"
)

var (
	// ErrPlanNotFound is returned when no plan has the requested id.
	ErrPlanNotFound = errors.New("plan not found")
	// ErrPlanConflict is returned when a different plan was already stored
	// under the same plan id.
	ErrPlanConflict = errors.New("plan id already stored with a different hash")
	// ErrIntegrity is returned when a stored plan fails hash verification.
	ErrIntegrity = errors.New("stored plan failed integrity check")
)

// Record is a stored plan with its bookkeeping fields.
type Record struct {
	RecordID string                  `json:"recordId"`
	StoredAt time.Time               `json:"storedAt"`
	Plan     contracts.ExecutionPlan `json:"plan"`
}

// PlanStore saves and retrieves execution plans.
type PlanStore interface {
	// Save stores plan. Saving an identical plan again returns the original
	// record.
	Save(ctx context.Context, plan contracts.ExecutionPlan) (Record, error)
	Get(ctx context.Context, planID string) (Record, error)
	// List returns the most recently stored plans first.
	List(ctx context.Context, limit int) ([]Record, error)
	Ping(ctx context.Context) error
}
