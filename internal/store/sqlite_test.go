package store_test

import (
	"context"
	"testing"
	"time"

	"moveline/internal/domain"
	"moveline/internal/schemapath"
	"moveline/internal/store"
)

var fixedNow = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func readySchema(t *testing.T) domain.Schema {
	t.Helper()
	s, err := schemapath.Merge(domain.NewSchema(fixedNow, "req-1"), domain.Patch{
		"move": {
			"category": domain.CategoryApartment,
			"type":     domain.MoveGeneral,
			"schedule": domain.Schedule{DateType: domain.DateExact, Date: domain.Ptr("2025-06-01")},
			"timeSlot": domain.SlotMorning,
		},
		"departure": {
			"address":         "강남구 역삼동",
			"floor":           3,
			"floorStatus":     domain.FloorKnown,
			"hasElevator":     domain.Yes,
			"transportMethod": domain.TransportElevator,
			"squareFootage":   domain.Sq15to25,
		},
		"arrival": {
			"address":         "마포구 합정동",
			"floor":           5,
			"floorStatus":     domain.FloorKnown,
			"hasElevator":     domain.Yes,
			"transportMethod": domain.TransportElevator,
		},
		"contact": {"name": "홍길동", "phone": "010-1234-5678"},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	return s
}

func newSQLite(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	s.Now = func() time.Time { return fixedNow }
	n := 0
	s.NewID = func() string {
		n++
		return []string{"est-1", "est-2", "est-3"}[n-1]
	}
	return s
}

func TestSQLiteInsertRecomputesStatus(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	draft := domain.NewSchema(fixedNow, "req-9")
	draft.Status.CompletionRate = 0.99
	est, err := s.Insert(ctx, draft, "sess-1")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if est.ID != "est-1" || est.Status != domain.EstimateDraft || est.CompletionRate != 0 {
		t.Fatalf("unexpected estimate: %+v", est)
	}
	got, err := s.Get(ctx, "est-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RequestID != "req-9" || got.Schema.Status.CompletionRate != 0 {
		t.Fatalf("stored estimate not recomputed: %+v", got)
	}
	evts, err := s.Events(ctx, "est-1", 0, 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 1 || evts[0].Type != domain.EventEstimateCreated || evts[0].ActorID != "sess-1" {
		t.Fatalf("unexpected events: %+v", evts)
	}
}

func TestSQLiteUpdateEmitsSubmitted(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	ready := readySchema(t)
	est, err := s.Insert(ctx, ready, "")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if est.CompletionRate != 1 || est.Phone == nil || *est.Phone != "010-1234-5678" {
		t.Fatalf("unexpected derived columns: %+v", est)
	}
	ready.Status.SubmittedAt = domain.Ptr(fixedNow.Format(time.RFC3339))
	est, err = s.Update(ctx, est.ID, ready, "sess-1")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if est.Status != domain.EstimateSubmitted || est.SubmittedAt == nil {
		t.Fatalf("expected submitted, got %+v", est)
	}
	if _, err := s.Update(ctx, est.ID, ready, "sess-1"); err != nil {
		t.Fatalf("second update: %v", err)
	}
	evts, err := s.Events(ctx, est.ID, 0, 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	var types []string
	for _, e := range evts {
		types = append(types, e.Type)
	}
	want := []string{domain.EventEstimateCreated, domain.EventEstimateUpdated, domain.EventEstimateSubmitted, domain.EventEstimateUpdated}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events = %v, want %v", types, want)
		}
	}
	after, err := s.Events(ctx, est.ID, evts[1].ID, 10)
	if err != nil || len(after) != 2 {
		t.Fatalf("events after cursor: %v %d", err, len(after))
	}
}

func TestSQLiteListAndNotFound(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	if _, err := s.Insert(ctx, domain.NewSchema(fixedNow, "req-a"), ""); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	ready := readySchema(t)
	ready.Status.SubmittedAt = domain.Ptr(fixedNow.Format(time.RFC3339))
	if _, err := s.Insert(ctx, ready, ""); err != nil {
		t.Fatalf("insert b: %v", err)
	}
	all, err := s.List(ctx, domain.EstimateFilter{})
	if err != nil || len(all) != 2 {
		t.Fatalf("list: %v %d", err, len(all))
	}
	submitted, err := s.List(ctx, domain.EstimateFilter{Status: domain.EstimateSubmitted})
	if err != nil || len(submitted) != 1 || submitted[0].ID != "est-2" {
		t.Fatalf("list submitted: %v %+v", err, submitted)
	}
	counts, err := s.Repo.CountEstimatesByStatus(ctx)
	if err != nil || counts[domain.EstimateDraft] != 1 || counts[domain.EstimateSubmitted] != 1 {
		t.Fatalf("counts: %v %v", err, counts)
	}

	if _, err := s.Load(ctx, "missing"); !store.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.Update(ctx, "missing", ready, ""); !store.IsNotFound(err) {
		t.Fatalf("expected not found on update, got %v", err)
	}
	if _, err := s.Events(ctx, "missing", 0, 10); !store.IsNotFound(err) {
		t.Fatalf("expected not found on events, got %v", err)
	}
}

func TestSQLiteEventWriterClock(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	writerNow := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	s.Writer.Now = func() time.Time { return writerNow }
	if _, err := s.Insert(ctx, domain.NewSchema(fixedNow, "req-1"), ""); err != nil {
		t.Fatalf("insert: %v", err)
	}
	evts, err := s.Events(ctx, "est-1", 0, 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 1 || evts[0].TS != "2025-07-01T12:00:00Z" || evts[0].ActorID != "system" {
		t.Fatalf("unexpected events: %+v", evts)
	}
}
