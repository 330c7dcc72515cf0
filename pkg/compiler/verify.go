package compiler

import (
	"errors"
	"fmt"

	"github.com/josephblackelite/spur-protocol/pkg/contracts"
)

// ErrHashMismatch is returned by Verify when a plan's hash does not match
// its contents.
var ErrHashMismatch = errors.New("plan hash mismatch")

// ComputeHash recomputes the integrity hash over the plan minus its hash.
func ComputeHash(plan contracts.ExecutionPlan) (string, error) {
	return hashPayload(plan.Payload())
}

// Verify recomputes the plan hash and compares it to plan.Hash.
func Verify(plan contracts.ExecutionPlan) error {
	want, err := ComputeHash(plan)
	if err != nil {
		return err
	}
	if plan.Hash != want {
		return fmt.Errorf("%w: plan %q declares %q, contents hash to %q", ErrHashMismatch, plan.PlanID, plan.Hash, want)
	}
	return nil
}
