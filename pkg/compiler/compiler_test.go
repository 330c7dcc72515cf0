package compiler

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephblackelite/spur-protocol/pkg/canonicalize"
	"github.com/josephblackelite/spur-protocol/pkg/contracts"
)

// goldenPlanHash is sha256 of the canonical payload of fixture():
// {"auditRequirements":{"requireReceipts":true,"retentionDays":30},"createdAt":"2026-01-01T00:00:00Z",
// "planId":"env-001-plan","sourceEnvelopeId":"env-001","steps":[{"action":"navigate","stepId":"step-1"},
// {"action":"clean-surface","stepId":"step-2"}],"version":"0.1.0"}
const goldenPlanHash = "303fe273262037e7000231740d5c870a372ec3c685e0c8cd53a9876cdb592036"

func fixture() Input {
	return Input{
		Envelope: contracts.Envelope{
			Version:              "0.1.0",
			ID:                   "env-001",
			IssuedAt:             "2026-01-01T00:00:00Z",
			Intent:               contracts.Intent{Verb: "clean", Target: "kitchen"},
			Constraints:          map[string]any{},
			RequiredCapabilities: []string{"surface-cleaning"},
		},
		Skill: contracts.SkillPack{
			SkillID:              "skill-clean-bathroom",
			Name:                 "Clean bathroom",
			CapabilitiesProvided: []string{"surface-cleaning", "mapping"},
			Steps: []contracts.Step{
				{StepID: "step-1", Action: "navigate"},
				{StepID: "step-2", Action: "clean-surface"},
			},
		},
		Policy: contracts.Policy{
			PolicyID:     "policy-001",
			AllowedVerbs: []string{"clean"},
			Limits:       map[string]any{},
			Audit:        map[string]any{"requireReceipts": true, "retentionDays": 30},
		},
		Robot: &contracts.RobotProfile{
			RobotID:      "robot-001",
			Capabilities: []string{"surface-cleaning"},
		},
	}
}

func TestCompile_ValidPlan(t *testing.T) {
	in := fixture()

	plan, err := Compile(in)
	require.NoError(t, err)

	assert.Equal(t, "0.1.0", plan.Version)
	assert.Equal(t, "env-001-plan", plan.PlanID)
	assert.Equal(t, "env-001", plan.SourceEnvelopeID)
	assert.Equal(t, "2026-01-01T00:00:00Z", plan.CreatedAt, "createdAt is the envelope issuance time")
	assert.Equal(t, in.Skill.Steps, plan.Steps)
	assert.Equal(t, in.Policy.Audit, plan.AuditRequirements)
	assert.Equal(t, goldenPlanHash, plan.Hash)
}

func TestCompile_HashIsReproducible(t *testing.T) {
	a, err := Compile(fixture())
	require.NoError(t, err)
	b, err := Compile(fixture())
	require.NoError(t, err)

	assert.Equal(t, a.Hash, b.Hash)
}

func TestCompile_HashIgnoresConstructionOrder(t *testing.T) {
	in := fixture()
	audit := make(map[string]any)
	audit["retentionDays"] = 30
	audit["requireReceipts"] = true
	in.Policy.Audit = audit

	plan, err := Compile(in)
	require.NoError(t, err)
	assert.Equal(t, goldenPlanHash, plan.Hash)
}

func TestCompile_HashChangesWithPayload(t *testing.T) {
	base, err := Compile(fixture())
	require.NoError(t, err)

	t.Run("step action", func(t *testing.T) {
		in := fixture()
		in.Skill.Steps = []contracts.Step{
			{StepID: "step-1", Action: "navigate"},
			{StepID: "step-2", Action: "mop-floor"},
		}
		plan, err := Compile(in)
		require.NoError(t, err)
		assert.NotEqual(t, base.Hash, plan.Hash)
	})

	t.Run("step order", func(t *testing.T) {
		in := fixture()
		in.Skill.Steps = []contracts.Step{in.Skill.Steps[1], in.Skill.Steps[0]}
		plan, err := Compile(in)
		require.NoError(t, err)
		assert.NotEqual(t, base.Hash, plan.Hash)
	})

	t.Run("issuedAt", func(t *testing.T) {
		in := fixture()
		in.Envelope.IssuedAt = "2026-01-02T00:00:00Z"
		plan, err := Compile(in)
		require.NoError(t, err)
		assert.NotEqual(t, base.Hash, plan.Hash)
	})

	t.Run("audit requirement", func(t *testing.T) {
		in := fixture()
		in.Policy.Audit = map[string]any{"requireReceipts": false, "retentionDays": 30}
		plan, err := Compile(in)
		require.NoError(t, err)
		assert.NotEqual(t, base.Hash, plan.Hash)
	})
}

func TestCompile_InputsNotInPayloadDoNotAffectHash(t *testing.T) {
	in := fixture()
	in.Envelope.Intent.Target = "garage"
	in.Envelope.Constraints = map[string]any{"zone": "b"}
	in.Policy.Limits = map[string]any{"speedLimit": 2}
	in.Robot.Capabilities = append(in.Robot.Capabilities, "lifting")

	plan, err := Compile(in)
	require.NoError(t, err)
	assert.Equal(t, goldenPlanHash, plan.Hash)
}

func TestCompile_VerbNotAllowed(t *testing.T) {
	in := fixture()
	in.Envelope.Intent.Verb = "deliver"

	plan, err := Compile(in)
	require.Error(t, err)
	assert.Nil(t, plan)
	assert.True(t, errors.Is(err, ErrVerbNotAllowed))
	assert.Contains(t, err.Error(), "not allowed")
	assert.Contains(t, err.Error(), `"deliver"`)
	assert.Contains(t, err.Error(), `"policy-001"`)

	var ce *CompilationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, KindVerbNotAllowed, ce.Kind)
}

func TestCompile_SkillCapabilityGap(t *testing.T) {
	in := fixture()
	in.Skill.CapabilitiesProvided = []string{"mapping"}

	_, err := Compile(in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSkillCapabilityGap)
	assert.NotErrorIs(t, err, ErrRobotCapabilityGap)

	var ce *CompilationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"surface-cleaning"}, ce.Missing)
	assert.Contains(t, err.Error(), "skill does not satisfy")
}

func TestCompile_RobotCapabilityGap(t *testing.T) {
	in := fixture()
	in.Envelope.RequiredCapabilities = []string{"surface-cleaning", "mapping"}

	_, err := Compile(in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRobotCapabilityGap)
	assert.Contains(t, err.Error(), "robot does not satisfy")
	assert.Contains(t, err.Error(), "missing: mapping")
}

func TestCompile_NilRobotHasNoCapabilities(t *testing.T) {
	in := fixture()
	in.Robot = nil

	_, err := Compile(in)
	assert.ErrorIs(t, err, ErrRobotCapabilityGap)

	in.Envelope.RequiredCapabilities = nil
	plan, err := Compile(in)
	require.NoError(t, err)
	assert.NotEmpty(t, plan.Hash)
}

func TestCompile_CheckOrder(t *testing.T) {
	// Every check fails; the verb check must win.
	in := fixture()
	in.Envelope.Intent.Verb = "deliver"
	in.Skill.CapabilitiesProvided = nil
	in.Robot = nil

	_, err := Compile(in)
	assert.ErrorIs(t, err, ErrVerbNotAllowed)

	// Skill and robot both fail; the skill check must win.
	in.Envelope.Intent.Verb = "clean"
	_, err = Compile(in)
	assert.ErrorIs(t, err, ErrSkillCapabilityGap)
}

func TestCompile_ExtraCapabilitiesNeverFail(t *testing.T) {
	in := fixture()
	in.Skill.CapabilitiesProvided = []string{"a", "surface-cleaning", "b", "c"}
	in.Robot.Capabilities = []string{"x", "y", "surface-cleaning"}

	_, err := Compile(in)
	require.NoError(t, err)
}

func TestCompile_NilAuditBecomesEmptyObject(t *testing.T) {
	in := fixture()
	in.Policy.Audit = nil

	plan, err := Compile(in)
	require.NoError(t, err)
	assert.NotNil(t, plan.AuditRequirements)
	assert.Empty(t, plan.AuditRequirements)
}

func TestVerify(t *testing.T) {
	plan, err := Compile(fixture())
	require.NoError(t, err)

	require.NoError(t, Verify(*plan))

	recomputed, err := ComputeHash(*plan)
	require.NoError(t, err)
	assert.Equal(t, plan.Hash, recomputed)

	tampered := *plan
	tampered.Steps = []contracts.Step{{StepID: "step-1", Action: "self-destruct"}}
	err = Verify(tampered)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHashMismatch)

	// The hash field is not part of its own input.
	rehashed := *plan
	rehashed.Hash = "0000"
	h, err := ComputeHash(rehashed)
	require.NoError(t, err)
	assert.Equal(t, plan.Hash, h)
}

func decodeUseNumber(t *testing.T, doc string, v any) {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(doc)))
	dec.UseNumber()
	require.NoError(t, dec.Decode(v))
}

func TestCompile_StepsCopiedVerbatim(t *testing.T) {
	in := fixture()
	decodeUseNumber(t, `{
		"skillId": "skill-go",
		"capabilitiesProvided": ["surface-cleaning"],
		"steps": [{"stepId": "s1", "action": "go", "params": {}, "timeoutSec": 5}]
	}`, &in.Skill)

	plan, err := Compile(in)
	require.NoError(t, err)

	steps, err := canonicalize.MarshalString(plan.Steps)
	require.NoError(t, err)
	assert.Equal(t, `[{"action":"go","params":{},"stepId":"s1","timeoutSec":5}]`, steps)

	// The hash covers the full step document.
	want, err := canonicalize.CanonicalHash(map[string]any{
		"version":           plan.Version,
		"planId":            plan.PlanID,
		"sourceEnvelopeId":  plan.SourceEnvelopeID,
		"createdAt":         plan.CreatedAt,
		"auditRequirements": plan.AuditRequirements,
		"steps": []any{map[string]any{
			"stepId": "s1", "action": "go", "params": map[string]any{}, "timeoutSec": 5,
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, want, plan.Hash)
}

func TestVerify_SealedPlanWithExtraStepFields(t *testing.T) {
	payload := map[string]any{
		"version":           "0.1.0",
		"planId":            "env-x-plan",
		"sourceEnvelopeId":  "env-x",
		"createdAt":         "2026-01-01T00:00:00Z",
		"auditRequirements": map[string]any{"retentionDays": json.Number("90.0")},
		"steps": []any{map[string]any{
			"stepId": "s1", "action": "go", "params": map[string]any{}, "timeoutSec": json.Number("5"),
		}},
	}
	hash, err := canonicalize.CanonicalHash(payload)
	require.NoError(t, err)
	payload["hash"] = hash

	doc, err := json.Marshal(payload)
	require.NoError(t, err)

	var plan contracts.ExecutionPlan
	decodeUseNumber(t, string(doc), &plan)
	require.NoError(t, Verify(plan))

	delete(plan.Steps[0].Extra, "timeoutSec")
	assert.ErrorIs(t, Verify(plan), ErrHashMismatch)
}
