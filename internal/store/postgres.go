// File: internal/store/postgres.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tracepoint/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Postgres implements schemas.Store on PostgreSQL. Structured records are
// kept as JSONB payloads next to the columns the queries filter on.
type Postgres struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.Store = (*Postgres)(nil)

// NewPostgres creates a store and verifies the connection.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*Postgres, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool, log: logger.Named("store.postgres")}, nil
}

// Schema is the DDL the store expects.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    individual_id TEXT NOT NULL,
    type TEXT NOT NULL,
    severity DOUBLE PRECISION NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL,
    description TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS events_individual_idx ON events (individual_id, occurred_at);
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    individual_id TEXT NOT NULL,
    posture TEXT NOT NULL,
    aggregate_risk DOUBLE PRECISION NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    payload JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS observations (
    id TEXT PRIMARY KEY,
    individual_id TEXT NOT NULL,
    observed_at TIMESTAMPTZ NOT NULL,
    payload JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    individual_id TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    payload JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS plans (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    payload JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS actions (
    id TEXT PRIMARY KEY,
    plan_id TEXT NOT NULL,
    sequence_order INT NOT NULL,
    payload JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS outcomes (
    id TEXT PRIMARY KEY,
    plan_id TEXT NOT NULL,
    measured_at TIMESTAMPTZ NOT NULL,
    payload JSONB NOT NULL
);`

// Migrate creates missing tables.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// -- Events --

var eventColumns = []string{"id", "individual_id", "type", "severity", "occurred_at", "description"}

// ImportEvents bulk-loads events with COPY.
func (s *Postgres) ImportEvents(ctx context.Context, events []schemas.Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([][]any, len(events))
	for i, e := range events {
		rows[i] = []any{e.ID, e.IndividualID, string(e.Type), e.Severity, e.Timestamp.UTC(), e.Description}
	}
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"events"}, eventColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy events: %w", err)
	}
	if int(n) != len(events) {
		return fmt.Errorf("mismatch in copied events count: expected %d, got %d", len(events), n)
	}
	return nil
}

const sqlSelectEvents = `
    SELECT id, individual_id, type, severity, occurred_at, description
    FROM events
    WHERE individual_id = $1 AND occurred_at >= $2
    ORDER BY occurred_at ASC;
`

func (s *Postgres) Events(ctx context.Context, individualID string, since time.Time) ([]schemas.Event, error) {
	rows, err := s.pool.Query(ctx, sqlSelectEvents, individualID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []schemas.Event
	for rows.Next() {
		var e schemas.Event
		var typ string
		if err := rows.Scan(&e.ID, &e.IndividualID, &typ, &e.Severity, &e.Timestamp, &e.Description); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e.Type = schemas.EventType(typ)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return events, nil
}

// Individuals lists every individual with at least one event.
func (s *Postgres) Individuals(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT individual_id FROM events ORDER BY individual_id;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query individuals: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan individual row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return ids, nil
}

// -- Decisions --

const sqlUpsertDecision = `
    INSERT INTO decisions (id, individual_id, posture, aggregate_risk, created_at, payload)
    VALUES ($1, $2, $3, $4, $5, $6)
    ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload;
`

func (s *Postgres) SaveDecision(ctx context.Context, d *schemas.Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode decision %s: %w", d.ID, err)
	}
	if _, err := s.pool.Exec(ctx, sqlUpsertDecision, d.ID, d.IndividualID, string(d.Posture), d.AggregateRisk, d.CreatedAt.UTC(), payload); err != nil {
		return fmt.Errorf("failed to save decision %s: %w", d.ID, err)
	}
	return nil
}

const sqlRecentDecisions = `
    SELECT payload FROM decisions
    WHERE individual_id = $1
    ORDER BY created_at DESC
    LIMIT $2;
`

func (s *Postgres) RecentDecisions(ctx context.Context, individualID string, limit int) ([]schemas.Decision, error) {
	return queryPayloads[schemas.Decision](ctx, s.pool, sqlRecentDecisions, individualID, limit)
}

// -- Observations --

const sqlInsertObservation = `
    INSERT INTO observations (id, individual_id, observed_at, payload)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload;
`

func (s *Postgres) SaveObservation(ctx context.Context, o *schemas.Observation) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to encode observation %s: %w", o.ID, err)
	}
	if _, err := s.pool.Exec(ctx, sqlInsertObservation, o.ID, o.IndividualID, o.ObservedAt.UTC(), payload); err != nil {
		return fmt.Errorf("failed to save observation %s: %w", o.ID, err)
	}
	return nil
}

// -- Sessions --

const sqlUpsertSession = `
    INSERT INTO sessions (id, individual_id, status, started_at, payload)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (id) DO UPDATE SET
        status = EXCLUDED.status,
        payload = EXCLUDED.payload;
`

func (s *Postgres) SaveSession(ctx context.Context, sess *schemas.AgentSession) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sess.ID, err)
	}
	if _, err := s.pool.Exec(ctx, sqlUpsertSession, sess.ID, sess.IndividualID, string(sess.Status), sess.StartedAt.UTC(), payload); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *Postgres) GetSession(ctx context.Context, id string) (*schemas.AgentSession, error) {
	return queryPayload[schemas.AgentSession](ctx, s.pool, `SELECT payload FROM sessions WHERE id = $1;`, id)
}

const sqlActiveSession = `
    SELECT payload FROM sessions
    WHERE individual_id = $1 AND status NOT IN ('COMPLETED', 'FAILED')
    ORDER BY started_at DESC
    LIMIT 1;
`

func (s *Postgres) ActiveSession(ctx context.Context, individualID string) (*schemas.AgentSession, error) {
	return queryPayload[schemas.AgentSession](ctx, s.pool, sqlActiveSession, individualID)
}

// -- Plans --

const sqlUpsertPlan = `
    INSERT INTO plans (id, session_id, created_at, payload)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload;
`

func (s *Postgres) SavePlan(ctx context.Context, p *schemas.InterventionPlan) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode plan %s: %w", p.ID, err)
	}
	if _, err := s.pool.Exec(ctx, sqlUpsertPlan, p.ID, p.SessionID, p.CreatedAt.UTC(), payload); err != nil {
		return fmt.Errorf("failed to save plan %s: %w", p.ID, err)
	}
	return nil
}

func (s *Postgres) GetPlan(ctx context.Context, id string) (*schemas.InterventionPlan, error) {
	return queryPayload[schemas.InterventionPlan](ctx, s.pool, `SELECT payload FROM plans WHERE id = $1;`, id)
}

const sqlPlanForSession = `
    SELECT payload FROM plans
    WHERE session_id = $1
    ORDER BY created_at DESC
    LIMIT 1;
`

func (s *Postgres) PlanForSession(ctx context.Context, sessionID string) (*schemas.InterventionPlan, error) {
	return queryPayload[schemas.InterventionPlan](ctx, s.pool, sqlPlanForSession, sessionID)
}

// -- Actions --

const sqlUpsertAction = `
    INSERT INTO actions (id, plan_id, sequence_order, payload)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (id) DO UPDATE SET
        sequence_order = EXCLUDED.sequence_order,
        payload = EXCLUDED.payload;
`

// SaveActions upserts the actions in one transaction.
func (s *Postgres) SaveActions(ctx context.Context, actions []schemas.Action) error {
	if len(actions) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	batch := &pgx.Batch{}
	for _, a := range actions {
		payload, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to encode action %s: %w", a.ID, err)
		}
		batch.Queue(sqlUpsertAction, a.ID, a.PlanID, a.SequenceOrder, payload)
	}

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	for i := range actions {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to upsert action %s (index %d): %w", actions[i].ID, i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const sqlActionsForPlan = `
    SELECT payload FROM actions
    WHERE plan_id = $1
    ORDER BY sequence_order ASC;
`

func (s *Postgres) ActionsForPlan(ctx context.Context, planID string) ([]schemas.Action, error) {
	return queryPayloads[schemas.Action](ctx, s.pool, sqlActionsForPlan, planID)
}

// -- Outcomes --

const sqlInsertOutcome = `
    INSERT INTO outcomes (id, plan_id, measured_at, payload)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload;
`

func (s *Postgres) SaveOutcome(ctx context.Context, o *schemas.Outcome) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to encode outcome %s: %w", o.ID, err)
	}
	if _, err := s.pool.Exec(ctx, sqlInsertOutcome, o.ID, o.PlanID, o.MeasuredAt.UTC(), payload); err != nil {
		return fmt.Errorf("failed to save outcome %s: %w", o.ID, err)
	}
	return nil
}

func (s *Postgres) GetOutcome(ctx context.Context, id string) (*schemas.Outcome, error) {
	return queryPayload[schemas.Outcome](ctx, s.pool, `SELECT payload FROM outcomes WHERE id = $1;`, id)
}

// -- helpers --

func queryPayload[T any](ctx context.Context, pool DBPool, sql string, args ...any) (*T, error) {
	var raw []byte
	if err := pool.QueryRow(ctx, sql, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, schemas.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query record: %w", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &out, nil
}

func queryPayloads[T any](ctx context.Context, pool DBPool, sql string, args ...any) ([]T, error) {
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
