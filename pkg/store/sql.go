package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/josephblackelite/spur-protocol/pkg/canonicalize"
	"github.com/josephblackelite/spur-protocol/pkg/compiler"
	"github.com/josephblackelite/spur-protocol/pkg/contracts"
)

// Dialect selects placeholder syntax.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const createPlansTable = `CREATE TABLE IF NOT EXISTS plans (
	record_id TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL UNIQUE,
	source_envelope_id TEXT NOT NULL,
	hash TEXT NOT NULL,
	created_at TEXT NOT NULL,
	stored_at TEXT NOT NULL,
	document TEXT NOT NULL
)`

const selectPlan = `SELECT record_id, hash, stored_at, document FROM plans`

// SQLStore is a PlanStore over database/sql for SQLite and Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// New wraps db and creates the plans table if needed.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	switch dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return nil, fmt.Errorf("store: unsupported dialect %q", dialect)
	}
	s := &SQLStore{db: db, dialect: dialect, now: time.Now}
	if _, err := s.db.ExecContext(ctx, createPlansTable); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Open connects to url and returns a migrated store. Accepted forms are
// sqlite:<path> (":memory:" included) and postgres:// or postgresql:// DSNs.
func Open(ctx context.Context, url string) (*SQLStore, error) {
	var (
		driver, dsn string
		dialect     Dialect
	)
	switch {
	case strings.HasPrefix(url, "sqlite:"):
		driver, dsn, dialect = "sqlite", strings.TrimPrefix(url, "sqlite:"), DialectSQLite
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		driver, dsn, dialect = "postgres", url, DialectPostgres
	default:
		return nil, fmt.Errorf("store: unsupported database url %q", url)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if dialect == DialectSQLite {
		// One connection keeps :memory: databases alive and serializes writers.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", driver, err)
	}
	s, err := New(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Save(ctx context.Context, plan contracts.ExecutionPlan) (Record, error) {
	if err := compiler.Verify(plan); err != nil {
		return Record{}, fmt.Errorf("store: refusing plan %s: %w", plan.PlanID, err)
	}

	if rec, found, err := s.existing(ctx, plan); found || err != nil {
		return rec, err
	}

	doc, err := canonicalize.Marshal(plan)
	if err != nil {
		return Record{}, fmt.Errorf("store: encode plan %s: %w", plan.PlanID, err)
	}

	rec := Record{
		RecordID: uuid.NewString(),
		StoredAt: s.now().UTC(),
		Plan:     plan,
	}
	query := s.rebind(`INSERT INTO plans (record_id, plan_id, source_envelope_id, hash, created_at, stored_at, document) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query,
		rec.RecordID, plan.PlanID, plan.SourceEnvelopeID, plan.Hash, plan.CreatedAt,
		rec.StoredAt.Format(time.RFC3339Nano), string(doc),
	)
	if err != nil {
		// A concurrent Save may have inserted the same plan id first.
		if prev, found, gerr := s.existing(ctx, plan); found {
			return prev, gerr
		}
		return Record{}, fmt.Errorf("store: insert plan %s: %w", plan.PlanID, err)
	}
	return rec, nil
}

// existing reports whether plan.PlanID is already stored. A stored plan
// with a different hash is ErrPlanConflict.
func (s *SQLStore) existing(ctx context.Context, plan contracts.ExecutionPlan) (Record, bool, error) {
	prev, err := s.Get(ctx, plan.PlanID)
	switch {
	case err == nil:
		if prev.Plan.Hash != plan.Hash {
			return Record{}, true, fmt.Errorf("%w: %s", ErrPlanConflict, plan.PlanID)
		}
		return prev, true, nil
	case errors.Is(err, ErrPlanNotFound):
		return Record{}, false, nil
	default:
		return Record{}, false, err
	}
}

func (s *SQLStore) Get(ctx context.Context, planID string) (Record, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(selectPlan+` WHERE plan_id = ?`), planID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("store: get plan %s: %w", planID, err)
	}
	return rec, nil
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(selectPlan+` ORDER BY stored_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("store: list plans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list plans: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		rec      Record
		hash     string
		storedAt string
		document string
	)
	if err := sc.Scan(&rec.RecordID, &hash, &storedAt, &document); err != nil {
		return Record{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, storedAt)
	if err != nil {
		return Record{}, fmt.Errorf("store: record %s: bad stored_at: %w", rec.RecordID, err)
	}
	rec.StoredAt = t

	dec := json.NewDecoder(bytes.NewReader([]byte(document)))
	dec.UseNumber()
	if err := dec.Decode(&rec.Plan); err != nil {
		return Record{}, fmt.Errorf("store: record %s: decode: %w", rec.RecordID, err)
	}

	if rec.Plan.Hash != hash {
		return Record{}, fmt.Errorf("%w: record %s: document hash %q, indexed hash %q", ErrIntegrity, rec.RecordID, rec.Plan.Hash, hash)
	}
	if err := compiler.Verify(rec.Plan); err != nil {
		return Record{}, fmt.Errorf("%w: record %s: %w", ErrIntegrity, rec.RecordID, err)
	}
	return rec, nil
}
