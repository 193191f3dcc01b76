package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"moveline/internal/domain"
)

//go:embed sql/postgres.sql
var postgresSchema string

// Pool is the subset of pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Postgres stores estimates in PostgreSQL.
type Postgres struct {
	pool    Pool
	closeFn func()
	Now     func() time.Time
	NewID   func() string
}

// ConnectPostgres opens a pool, pings it and applies the schema.
func ConnectPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	p := NewPostgres(pool)
	p.closeFn = pool.Close
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func NewPostgres(pool Pool) *Postgres {
	return &Postgres{pool: pool, Now: time.Now, NewID: uuid.NewString}
}

// Migrate creates the tables if they are missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

func (p *Postgres) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC().Truncate(time.Second)
	}
	return time.Now().UTC().Truncate(time.Second)
}

func (p *Postgres) newID() string {
	if p.NewID != nil {
		return p.NewID()
	}
	return uuid.NewString()
}

func (p *Postgres) Insert(ctx context.Context, s domain.Schema, actor string) (domain.Estimate, error) {
	now := p.now()
	est := build(p.newID(), s, now.Format(time.RFC3339), now.Format(time.RFC3339))
	raw, err := json.Marshal(est.Schema)
	if err != nil {
		return domain.Estimate{}, eris.Wrap(err, "postgres: encode estimate")
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return domain.Estimate{}, eris.Wrap(err, "postgres: begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()
	_, err = tx.Exec(ctx,
		`INSERT INTO estimates (id, request_id, status, phone, completion_rate, schema, created_at, updated_at, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		est.ID, est.RequestID, est.Status, est.Phone, est.CompletionRate, raw, now, now, est.SubmittedAt,
	)
	if err != nil {
		return domain.Estimate{}, eris.Wrap(err, "postgres: insert estimate")
	}
	if err := p.appendEvents(ctx, tx, now, nil, est, actor); err != nil {
		return domain.Estimate{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Estimate{}, eris.Wrap(err, "postgres: commit")
	}
	return est, nil
}

func (p *Postgres) Update(ctx context.Context, id string, s domain.Schema, actor string) (domain.Estimate, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return domain.Estimate{}, eris.Wrap(err, "postgres: begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		prev    domain.Estimate
		created time.Time
	)
	err = tx.QueryRow(ctx, `SELECT status, created_at FROM estimates WHERE id = $1 FOR UPDATE`, id).Scan(&prev.Status, &created)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Estimate{}, ErrNotFound
		}
		return domain.Estimate{}, eris.Wrapf(err, "postgres: lock estimate %s", id)
	}
	prev.ID = id

	now := p.now()
	est := build(id, s, created.UTC().Format(time.RFC3339), now.Format(time.RFC3339))
	raw, err := json.Marshal(est.Schema)
	if err != nil {
		return domain.Estimate{}, eris.Wrap(err, "postgres: encode estimate")
	}
	_, err = tx.Exec(ctx,
		`UPDATE estimates SET request_id = $2, status = $3, phone = $4, completion_rate = $5, schema = $6, updated_at = $7, submitted_at = $8
		 WHERE id = $1`,
		id, est.RequestID, est.Status, est.Phone, est.CompletionRate, raw, now, est.SubmittedAt,
	)
	if err != nil {
		return domain.Estimate{}, eris.Wrapf(err, "postgres: update estimate %s", id)
	}
	if err := p.appendEvents(ctx, tx, now, &prev, est, actor); err != nil {
		return domain.Estimate{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Estimate{}, eris.Wrap(err, "postgres: commit")
	}
	return est, nil
}

func (p *Postgres) appendEvents(ctx context.Context, tx pgx.Tx, ts time.Time, prev *domain.Estimate, est domain.Estimate, actor string) error {
	if actor == "" {
		actor = "system"
	}
	payload, err := json.Marshal(payloadFor(est))
	if err != nil {
		return eris.Wrap(err, "postgres: encode event")
	}
	for _, typ := range EventsFor(prev, est) {
		_, err := tx.Exec(ctx,
			`INSERT INTO events (ts, type, entity_kind, entity_id, actor_id, payload) VALUES ($1, $2, $3, $4, $5, $6)`,
			ts, typ, domain.EntityEstimate, est.ID, actor, payload,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: append %s", typ)
		}
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (domain.Estimate, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, schema, created_at, updated_at FROM estimates WHERE id = $1`, id)
	est, err := scanPostgresEstimate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Estimate{}, ErrNotFound
		}
		return domain.Estimate{}, eris.Wrapf(err, "postgres: get estimate %s", id)
	}
	return est, nil
}

func (p *Postgres) Load(ctx context.Context, id string) (domain.Schema, error) {
	est, err := p.Get(ctx, id)
	if err != nil {
		return domain.Schema{}, err
	}
	return est.Schema, nil
}

func (p *Postgres) List(ctx context.Context, f domain.EstimateFilter) ([]domain.Estimate, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, schema, created_at, updated_at FROM estimates
		 WHERE ($1 = '' OR status = $1)
		 ORDER BY updated_at DESC, id DESC LIMIT $2`,
		f.Status, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list estimates")
	}
	defer rows.Close()
	var out []domain.Estimate
	for rows.Next() {
		est, err := scanPostgresEstimate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan estimate")
		}
		out = append(out, est)
	}
	return out, rows.Err()
}

func (p *Postgres) Events(ctx context.Context, id string, after int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, ts, type, entity_kind, entity_id, actor_id, payload FROM events
		 WHERE entity_kind = $1 AND entity_id = $2 AND id > $3
		 ORDER BY id ASC LIMIT $4`,
		domain.EntityEstimate, id, after, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: events for %s", id)
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var (
			e       domain.Event
			ts      time.Time
			payload []byte
		)
		if err := rows.Scan(&e.ID, &ts, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		e.TS = ts.UTC().Format(time.RFC3339)
		e.Payload = string(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() error {
	if p.closeFn != nil {
		p.closeFn()
	}
	return nil
}

func scanPostgresEstimate(row pgx.Row) (domain.Estimate, error) {
	var (
		id               string
		raw              []byte
		created, updated time.Time
		s                domain.Schema
	)
	if err := row.Scan(&id, &raw, &created, &updated); err != nil {
		return domain.Estimate{}, err
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.Estimate{}, fmt.Errorf("decode estimate %s: %w", id, err)
	}
	return build(id, s, created.UTC().Format(time.RFC3339), updated.UTC().Format(time.RFC3339)), nil
}

var _ Estimates = (*Postgres)(nil)
