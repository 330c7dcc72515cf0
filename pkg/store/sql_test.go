package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephblackelite/spur-protocol/pkg/canonicalize"
	"github.com/josephblackelite/spur-protocol/pkg/compiler"
	"github.com/josephblackelite/spur-protocol/pkg/contracts"
)

func compiledPlan(t *testing.T, envelopeID string) contracts.ExecutionPlan {
	t.Helper()
	plan, err := compiler.Compile(compiler.Input{
		Envelope: contracts.Envelope{
			ID:                   envelopeID,
			IssuedAt:             "2026-01-01T00:00:00Z",
			Intent:               contracts.Intent{Verb: "dock", Target: "base"},
			RequiredCapabilities: []string{"mapping"},
		},
		Skill: contracts.SkillPack{
			CapabilitiesProvided: []string{"mapping"},
			Steps:                []contracts.Step{{StepID: "s1", Action: "dock", Params: map[string]any{"speed": 0.25}}},
		},
		Policy: contracts.Policy{
			PolicyID:     "p",
			AllowedVerbs: []string{"dock"},
			Audit:        map[string]any{"retentionDays": 7},
		},
		Robot: &contracts.RobotProfile{Capabilities: []string{"mapping"}},
	})
	require.NoError(t, err)
	return *plan
}

func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), "sqlite::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_SaveGetList(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	p1 := compiledPlan(t, "env-1")
	p2 := compiledPlan(t, "env-2")

	r1, err := s.Save(ctx, p1)
	require.NoError(t, err)
	assert.Len(t, r1.RecordID, 36)
	_, err = s.Save(ctx, p2)
	require.NoError(t, err)

	got, err := s.Get(ctx, "env-1-plan")
	require.NoError(t, err)
	assert.Equal(t, r1.RecordID, got.RecordID)
	assert.Equal(t, p1.Hash, got.Plan.Hash)
	assert.True(t, got.StoredAt.Equal(r1.StoredAt))
	require.NoError(t, compiler.Verify(got.Plan))

	list, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "env-2-plan", list[0].Plan.PlanID, "newest first")
	assert.Equal(t, "env-1-plan", list[1].Plan.PlanID)

	require.NoError(t, s.Ping(ctx))
}

func TestSQLite_SaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	p := compiledPlan(t, "env-1")

	first, err := s.Save(ctx, p)
	require.NoError(t, err)
	second, err := s.Save(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, first.RecordID, second.RecordID)

	list, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSQLite_RejectsTamperedPlan(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	p := compiledPlan(t, "env-1")
	p.Steps = []contracts.Step{{StepID: "s1", Action: "launch"}}

	_, err := s.Save(ctx, p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, compiler.ErrHashMismatch))
}

func TestSQLite_Conflict(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	p := compiledPlan(t, "env-1")
	_, err := s.Save(ctx, p)
	require.NoError(t, err)

	other := p
	other.CreatedAt = "2026-02-02T00:00:00Z"
	other.Hash, err = compiler.ComputeHash(other)
	require.NoError(t, err)

	_, err = s.Save(ctx, other)
	assert.ErrorIs(t, err, ErrPlanConflict)
}

func TestSQLite_DetectsTamperingAtRest(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	p := compiledPlan(t, "env-1")
	_, err := s.Save(ctx, p)
	require.NoError(t, err)

	tampered := p
	tampered.Steps = []contracts.Step{{StepID: "s1", Action: "launch"}}
	doc, err := canonicalize.Marshal(tampered)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `UPDATE plans SET document = ? WHERE plan_id = ?`, string(doc), p.PlanID)
	require.NoError(t, err)

	_, err = s.Get(ctx, p.PlanID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.ErrorIs(t, err, compiler.ErrHashMismatch)
}

func TestSQLite_NotFound(t *testing.T) {
	_, err := openSQLite(t).Get(context.Background(), "nope-plan")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestOpen_UnsupportedURL(t *testing.T) {
	_, err := Open(context.Background(), "mysql://root@localhost/spur")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database url")

	_, err = New(context.Background(), nil, Dialect("oracle"))
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	lite := &SQLStore{dialect: DialectSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS plans")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := New(context.Background(), db, DialectPostgres)
	require.NoError(t, err)
	return s, mock
}

func TestPostgres_Save(t *testing.T) {
	s, mock := newMockStore(t)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	p := compiledPlan(t, "env-1")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT record_id, hash, stored_at, document FROM plans WHERE plan_id = $1")).
		WithArgs("env-1-plan").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO plans (record_id, plan_id, source_envelope_id, hash, created_at, stored_at, document) VALUES ($1, $2, $3, $4, $5, $6, $7)")).
		WithArgs(sqlmock.AnyArg(), "env-1-plan", "env-1", p.Hash, "2026-01-01T00:00:00Z", "2026-03-01T00:00:00Z", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec, err := s.Save(context.Background(), p)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.RecordID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveLosesInsertRace(t *testing.T) {
	const selectByID = "SELECT record_id, hash, stored_at, document FROM plans WHERE plan_id = $1"
	p := compiledPlan(t, "env-1")
	doc, err := canonicalize.Marshal(p)
	require.NoError(t, err)
	uniqueViolation := errors.New(`duplicate key value violates unique constraint "plans_plan_id_key"`)

	t.Run("same plan returns the winner", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectByID)).WithArgs("env-1-plan").WillReturnError(sql.ErrNoRows)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO plans")).WillReturnError(uniqueViolation)
		mock.ExpectQuery(regexp.QuoteMeta(selectByID)).WithArgs("env-1-plan").
			WillReturnRows(sqlmock.NewRows([]string{"record_id", "hash", "stored_at", "document"}).
				AddRow("9b2f6c1e-0000-4000-8000-000000000007", p.Hash, "2026-03-01T00:00:00Z", string(doc)))

		rec, err := s.Save(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, "9b2f6c1e-0000-4000-8000-000000000007", rec.RecordID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("different plan conflicts", func(t *testing.T) {
		other := compiledPlan(t, "env-1")
		other.Steps = []contracts.Step{{StepID: "s1", Action: "launch"}}
		other.Hash, err = compiler.ComputeHash(other)
		require.NoError(t, err)
		otherDoc, err := canonicalize.Marshal(other)
		require.NoError(t, err)

		s, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectByID)).WithArgs("env-1-plan").WillReturnError(sql.ErrNoRows)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO plans")).WillReturnError(uniqueViolation)
		mock.ExpectQuery(regexp.QuoteMeta(selectByID)).WithArgs("env-1-plan").
			WillReturnRows(sqlmock.NewRows([]string{"record_id", "hash", "stored_at", "document"}).
				AddRow("9b2f6c1e-0000-4000-8000-000000000008", other.Hash, "2026-03-01T00:00:00Z", string(otherDoc)))

		_, err = s.Save(context.Background(), p)
		assert.ErrorIs(t, err, ErrPlanConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other insert errors surface", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectByID)).WithArgs("env-1-plan").WillReturnError(sql.ErrNoRows)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO plans")).WillReturnError(errors.New("disk full"))
		mock.ExpectQuery(regexp.QuoteMeta(selectByID)).WithArgs("env-1-plan").WillReturnError(sql.ErrNoRows)

		_, err := s.Save(context.Background(), p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgres_Get(t *testing.T) {
	s, mock := newMockStore(t)
	p := compiledPlan(t, "env-1")
	doc, err := canonicalize.Marshal(p)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"record_id", "hash", "stored_at", "document"}).
		AddRow("9b2f6c1e-0000-4000-8000-000000000001", p.Hash, "2026-03-01T00:00:00Z", string(doc))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT record_id, hash, stored_at, document FROM plans WHERE plan_id = $1")).
		WithArgs("env-1-plan").
		WillReturnRows(rows)

	rec, err := s.Get(context.Background(), "env-1-plan")
	require.NoError(t, err)
	assert.Equal(t, p.Hash, rec.Plan.Hash)
	assert.Equal(t, p.Steps[0].Action, rec.Plan.Steps[0].Action)

	// Indexed hash disagrees with the document.
	rows = sqlmock.NewRows([]string{"record_id", "hash", "stored_at", "document"}).
		AddRow("9b2f6c1e-0000-4000-8000-000000000002", "deadbeef", "2026-03-01T00:00:00Z", string(doc))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT record_id")).
		WithArgs("env-1-plan").
		WillReturnRows(rows)

	_, err = s.Get(context.Background(), "env-1-plan")
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY stored_at DESC LIMIT $1")).
		WithArgs(5).
		WillReturnError(errors.New("connection reset"))

	_, err := s.List(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
