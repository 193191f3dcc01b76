// Package store persists estimates and caches live session snapshots.
package store

import (
	"context"
	"errors"
	"time"

	"moveline/internal/domain"
	"moveline/internal/engine"
	"moveline/internal/repo"
)

// ErrNotFound is returned when an estimate does not exist.
var ErrNotFound = repo.ErrNotFound

// Estimates is the durable estimate store. Status, completion rate and
// phone are recomputed from the record before every save and on load.
type Estimates interface {
	Insert(ctx context.Context, s domain.Schema, actor string) (domain.Estimate, error)
	Update(ctx context.Context, id string, s domain.Schema, actor string) (domain.Estimate, error)
	Load(ctx context.Context, id string) (domain.Schema, error)
	Get(ctx context.Context, id string) (domain.Estimate, error)
	List(ctx context.Context, f domain.EstimateFilter) ([]domain.Estimate, error)
	Events(ctx context.Context, id string, after int64, limit int) ([]domain.Event, error)
	Close() error
}

// build derives the stored columns from s.
func build(id string, s domain.Schema, createdAt, updatedAt string) domain.Estimate {
	s = engine.Recompute(s)
	return domain.Estimate{
		ID:             id,
		RequestID:      s.Meta.RequestID,
		Status:         domain.EstimateStatus(s),
		Phone:          s.Contact.Phone,
		CompletionRate: s.Status.CompletionRate,
		Schema:         s,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		SubmittedAt:    s.Status.SubmittedAt,
	}
}

// refresh recomputes a loaded estimate.
func refresh(e domain.Estimate) domain.Estimate {
	return build(e.ID, e.Schema, e.CreatedAt, e.UpdatedAt)
}

func stamp(now func() time.Time) string {
	if now == nil {
		now = time.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// EventsFor lists the events a save from prev to next emits. A nil prev
// is an insert.
func EventsFor(prev *domain.Estimate, next domain.Estimate) []string {
	var out []string
	if prev == nil {
		out = append(out, domain.EventEstimateCreated)
	} else {
		out = append(out, domain.EventEstimateUpdated)
	}
	if next.Status == domain.EstimateSubmitted && (prev == nil || prev.Status != domain.EstimateSubmitted) {
		out = append(out, domain.EventEstimateSubmitted)
	}
	return out
}

func payloadFor(e domain.Estimate) map[string]any {
	return map[string]any{
		"request_id":      e.RequestID,
		"status":          e.Status,
		"completion_rate": e.CompletionRate,
	}
}

// IsNotFound reports whether err means a missing estimate.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
