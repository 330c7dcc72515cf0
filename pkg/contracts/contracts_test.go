package contracts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCovers_SubsetSemantics(t *testing.T) {
	available := []string{"mapping", "surface-cleaning", "task-queue"}

	assert.True(t, Covers(available, []string{"surface-cleaning"}))
	assert.True(t, Covers(available, nil), "empty requirement is always covered")
	assert.True(t, Covers(available, []string{"task-queue", "mapping"}), "order does not matter")
	assert.False(t, Covers(available, []string{"surface-cleaning", "lifting"}))
	assert.False(t, Covers(nil, []string{"mapping"}))
}

func TestMissing_PreservesRequiredOrder(t *testing.T) {
	got := Missing([]string{"c", "a", "b", "d"}, []string{"b"})
	assert.Equal(t, []string{"c", "a", "d"}, got)

	none := Missing([]string{"a"}, []string{"a", "b"})
	require.NotNil(t, none)
	assert.Empty(t, none)
}

func TestRobotProfile_CapabilitySetDefaultsToEmpty(t *testing.T) {
	var nilRobot *RobotProfile
	assert.Equal(t, []string{}, nilRobot.CapabilitySet())

	r := &RobotProfile{RobotID: "robot-001"}
	assert.Equal(t, []string{}, r.CapabilitySet())

	r.Capabilities = []string{"mapping"}
	assert.Equal(t, []string{"mapping"}, r.CapabilitySet())
}

func TestPolicy_HasSpeedLimitIsPresenceOnly(t *testing.T) {
	assert.False(t, Policy{}.HasSpeedLimit())
	assert.False(t, Policy{Limits: map[string]any{"forceLimit": 3}}.HasSpeedLimit())
	assert.True(t, Policy{Limits: map[string]any{"speedLimit": nil}}.HasSpeedLimit())
	assert.True(t, Policy{Limits: map[string]any{"speedLimit": 0}}.HasSpeedLimit())
}

func TestAdapterContract_CloneIsIndependent(t *testing.T) {
	orig := AdapterContract{
		AdapterID:             "adapter-a",
		SupportedVerbs:        []string{"clean"},
		SupportedCapabilities: []string{"mapping"},
		InteropContexts:       []string{"SIM"},
		AuditSupport:          AuditSupport{EmitsAuditEvents: true, MinimumEventSet: []string{"PLAN_STARTED"}},
	}

	c := orig.Clone()
	c.SupportedVerbs[0] = "deliver"
	c.SupportedCapabilities = append(c.SupportedCapabilities, "lifting")
	c.InteropContexts[0] = "HTTP_API"
	c.AuditSupport.MinimumEventSet[0] = "NONE"

	assert.Equal(t, []string{"clean"}, orig.SupportedVerbs)
	assert.Equal(t, []string{"mapping"}, orig.SupportedCapabilities)
	assert.Equal(t, []string{"SIM"}, orig.InteropContexts)
	assert.Equal(t, []string{"PLAN_STARTED"}, orig.AuditSupport.MinimumEventSet)
}

func TestExecutionPlan_PayloadRoundTrip(t *testing.T) {
	plan := ExecutionPlan{
		Version:          ProtocolVersion,
		PlanID:           "env-001-plan",
		SourceEnvelopeID: "env-001",
		CreatedAt:        "2026-01-01T00:00:00Z",
		Steps:            []Step{{StepID: "s1", Action: "vacuum"}},
		Hash:             "abc",
	}

	payload := plan.Payload()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"hash"`)

	assert.Equal(t, plan, payload.Seal("abc"))
}

func TestExplainReport_EmptyListsSerializeAsArrays(t *testing.T) {
	r := ExplainReport{
		OK:                  true,
		Decision:            EnforcementDecision{Mode: ModeAllow, Reason: "ok"},
		MissingCapabilities: []string{},
		PolicyIssues:        []string{},
		AdapterIssues:       []string{},
		SuggestedFixes:      []string{},
	}
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"decision":{"mode":"ALLOW","reason":"ok"},"missingCapabilities":[],"policyIssues":[],"adapterIssues":[],"suggestedFixes":[]}`, string(data))
}

func TestStep_KeepsUnknownFieldsAndEmptyParams(t *testing.T) {
	var s Step
	require.NoError(t, json.Unmarshal([]byte(`{"stepId":"s1","action":"go","params":{},"timeoutSec":5.0,"note":"x"}`), &s))
	assert.Equal(t, "s1", s.StepID)
	assert.NotNil(t, s.Params)
	assert.Equal(t, json.Number("5.0"), s.Extra["timeoutSec"])

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"stepId":"s1","action":"go","params":{},"timeoutSec":5.0,"note":"x"}`, string(out))
	assert.Contains(t, string(out), `"timeoutSec":5.0`)

	out, err = json.Marshal(Step{StepID: "s2", Action: "dock"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"stepId":"s2","action":"dock"}`, string(out))
}
