package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"moveline/internal/db"
	"moveline/internal/domain"
	"moveline/internal/events"
	"moveline/internal/migrate"
	"moveline/internal/repo"
)

// SQLite stores estimates in the workspace database.
type SQLite struct {
	DB     *sql.DB
	Repo   repo.Repo
	Writer events.Writer
	Now    func() time.Time
	NewID  func() string
}

// OpenSQLite opens and migrates the workspace database.
func OpenSQLite(ctx context.Context, workspace string) (*SQLite, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return NewSQLite(conn), nil
}

func NewSQLite(conn *sql.DB) *SQLite {
	return &SQLite{DB: conn, Repo: repo.Repo{DB: conn}, Now: time.Now, NewID: uuid.NewString}
}

func (s *SQLite) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *SQLite) Insert(ctx context.Context, schema domain.Schema, actor string) (domain.Estimate, error) {
	now := stamp(s.Now)
	est := build(s.newID(), schema, now, now)
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Estimate{}, err
	}
	defer tx.Rollback()
	if err := s.Repo.InsertEstimate(ctx, tx, est); err != nil {
		return domain.Estimate{}, fmt.Errorf("insert estimate: %w", err)
	}
	if err := s.appendEvents(ctx, tx, nil, est, actor); err != nil {
		return domain.Estimate{}, err
	}
	return est, tx.Commit()
}

func (s *SQLite) Update(ctx context.Context, id string, schema domain.Schema, actor string) (domain.Estimate, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Estimate{}, err
	}
	defer tx.Rollback()
	prev, err := s.Repo.GetEstimateTx(ctx, tx, id)
	if err != nil {
		return domain.Estimate{}, err
	}
	est := build(id, schema, prev.CreatedAt, stamp(s.Now))
	if err := s.Repo.UpdateEstimate(ctx, tx, est); err != nil {
		return domain.Estimate{}, fmt.Errorf("update estimate: %w", err)
	}
	if err := s.appendEvents(ctx, tx, &prev, est, actor); err != nil {
		return domain.Estimate{}, err
	}
	return est, tx.Commit()
}

func (s *SQLite) appendEvents(ctx context.Context, tx *sql.Tx, prev *domain.Estimate, est domain.Estimate, actor string) error {
	w := s.Writer
	if w.Now == nil {
		w.Now = s.Now
	}
	for _, typ := range EventsFor(prev, est) {
		if err := w.Append(ctx, tx, typ, domain.EntityEstimate, est.ID, actor, payloadFor(est)); err != nil {
			return fmt.Errorf("append %s: %w", typ, err)
		}
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (domain.Estimate, error) {
	est, err := s.Repo.GetEstimate(ctx, id)
	if err != nil {
		return domain.Estimate{}, err
	}
	return refresh(est), nil
}

func (s *SQLite) Load(ctx context.Context, id string) (domain.Schema, error) {
	est, err := s.Get(ctx, id)
	if err != nil {
		return domain.Schema{}, err
	}
	return est.Schema, nil
}

func (s *SQLite) List(ctx context.Context, f domain.EstimateFilter) ([]domain.Estimate, error) {
	list, err := s.Repo.ListEstimates(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i] = refresh(list[i])
	}
	return list, nil
}

func (s *SQLite) Events(ctx context.Context, id string, after int64, limit int) ([]domain.Event, error) {
	if _, err := s.Repo.GetEstimate(ctx, id); err != nil {
		return nil, err
	}
	return s.Repo.EventsAfter(ctx, limit, after, id)
}

func (s *SQLite) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

var _ Estimates = (*SQLite)(nil)
