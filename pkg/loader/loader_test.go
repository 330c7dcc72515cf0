package loader

import (
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephblackelite/spur-protocol/pkg/compiler"
	"github.com/josephblackelite/spur-protocol/pkg/contracts"
	"github.com/josephblackelite/spur-protocol/pkg/schema"
)

func example(name string) string {
	return filepath.Join("..", "..", "examples", name)
}

func TestLoad_Examples(t *testing.T) {
	env, err := LoadEnvelope(example("envelope.clean.json"))
	require.NoError(t, err)
	assert.Equal(t, "env-clean-001", env.ID)
	assert.Equal(t, "2026-01-15T09:30:00Z", env.IssuedAt)
	assert.Equal(t, "clean", env.Intent.Verb)
	assert.Equal(t, []string{"mapping", "obstacle-avoidance"}, env.RequiredCapabilities)

	policy, err := LoadPolicy(example("policy.default.json"))
	require.NoError(t, err)
	assert.True(t, policy.HasSpeedLimit())
	assert.Equal(t, json.Number("0.8"), policy.Limits["speedLimit"])

	skill, err := LoadSkill(example("skill.clean-bathroom.json"))
	require.NoError(t, err)
	require.Len(t, skill.Steps, 3)
	assert.Equal(t, "clean-surface", skill.Steps[1].Action)
	assert.Equal(t, []any{"sink", "floor"}, skill.Steps[1].Params["surfaces"])

	robot, err := LoadRobot(example("robot.default.json"))
	require.NoError(t, err)
	assert.Equal(t, "robot-default", robot.RobotID)

	adapter, err := LoadAdapter(example("adapter.sim-http.json"))
	require.NoError(t, err)
	assert.Equal(t, "adapter-sim-http-01", adapter.AdapterID)
	assert.True(t, adapter.ConstraintSupport.SpeedLimit)
}

func TestLoad_CompiledExampleMatchesGeneratedPlan(t *testing.T) {
	env, err := LoadEnvelope(example("envelope.clean.json"))
	require.NoError(t, err)
	skill, err := LoadSkill(example("skill.clean-bathroom.json"))
	require.NoError(t, err)
	policy, err := LoadPolicy(example("policy.default.json"))
	require.NoError(t, err)
	robot, err := LoadRobot(example("robot.default.json"))
	require.NoError(t, err)

	plan, err := compiler.Compile(compiler.Input{Envelope: env, Skill: skill, Policy: policy, Robot: &robot})
	require.NoError(t, err)

	stored, err := LoadPlan(example("plan.generated.json"))
	require.NoError(t, err)
	require.NoError(t, compiler.Verify(stored))

	assert.Equal(t, "db9cd9300a644fd88cbce525ef20351b46b7202a5f0f68597b88379aed18d2ce", plan.Hash)
	assert.Equal(t, stored.Hash, plan.Hash)
}

func TestLoad_YAML(t *testing.T) {
	fromYAML, err := LoadRobot(filepath.Join("testdata", "robot.yaml"))
	require.NoError(t, err)
	fromJSON, err := LoadRobot(example("robot.default.json"))
	require.NoError(t, err)

	assert.Equal(t, fromJSON.RobotID, fromYAML.RobotID)
	assert.Equal(t, fromJSON.Capabilities, fromYAML.Capabilities)
	assert.Equal(t, fromJSON.Adapters, fromYAML.Adapters)

	policy, err := LoadPolicy(filepath.Join("testdata", "policy.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "policy-yaml", policy.PolicyID)
	assert.False(t, policy.HasSpeedLimit())
	assert.Equal(t, true, policy.Audit["requireReceipts"])
}

func TestLoad_SchemaFailure(t *testing.T) {
	_, err := LoadEnvelope(filepath.Join("testdata", "envelope.invalid.json"))
	require.Error(t, err)

	var ve *schema.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, schema.KindEnvelope, ve.Schema)
	assert.Contains(t, err.Error(), "envelope.invalid.json")
	assert.Contains(t, err.Error(), "SpurEnvelope validation failed")
}

func TestLoad_WrongKind(t *testing.T) {
	_, err := LoadAdapter(example("robot.default.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AdapterContract validation failed")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join("testdata", "does-not-exist.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLoad_MalformedJSON(t *testing.T) {
	_, err := LoadPolicy(filepath.Join("testdata", "truncated.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestYAMLToJSON(t *testing.T) {
	out, err := YAMLToJSON([]byte("a: 1\nb:\n  - x\n  - {c: true}\n"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":["x",{"c":true}]}`, string(out))

	_, err = YAMLToJSON([]byte("a: [unterminated"))
	assert.Error(t, err)
}

func TestDecode_Inline(t *testing.T) {
	adapter, err := Decode[contracts.AdapterContract](schema.KindAdapter, []byte(`{
		"version": "0.1.0",
		"adapterId": "adapter-inline",
		"name": "Inline",
		"interopContexts": ["SIM"],
		"supportedVerbs": ["dock"],
		"supportedCapabilities": [],
		"constraintSupport": {"speedLimit": false, "forceLimit": false, "zoneEnforcement": false, "approvalGates": false},
		"auditSupport": {"emitsAuditEvents": true, "minimumEventSet": []},
		"endpoint": {"type": "http", "uri": "http://localhost:9000"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "adapter-inline", adapter.AdapterID)
	assert.True(t, adapter.SupportsVerb("dock"))
}
