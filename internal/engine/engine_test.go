package engine_test

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"moveline/internal/domain"
	"moveline/internal/engine"
	"moveline/internal/schemapath"
	"moveline/internal/steps"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng := engine.New()
	eng.Now = func() time.Time { return time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC) }
	eng.NewID = func() string { return "req-1" }
	eng.Reset()
	return eng
}

var requiredValues = []struct {
	path  string
	value any
}{
	{"move.category", "one_room"},
	{"move.type", "truck"},
	{"move.schedule", map[string]any{"dateType": "exact", "date": "2025-06-01", "dateFrom": nil, "dateTo": nil}},
	{"move.timeSlot", "morning"},
	{"departure.address", "강남구 역삼동"},
	{"departure.floor", 3},
	{"departure.hasElevator", "yes"},
	{"departure.squareFootage", "15_25"},
	{"arrival.address", "마포구 합정동"},
	{"arrival.floor", 2},
	{"arrival.hasElevator", "no"},
	{"contact.name", "홍길동"},
	{"contact.phone", "010-1234-5678"},
}

func TestDefaultSchemaIsNotSubmittable(t *testing.T) {
	eng := newEngine(t)
	if eng.CanSubmit() {
		t.Fatalf("default schema must not be submittable")
	}
	if rate := eng.CompletionRate(); rate != 0 {
		t.Fatalf("expected completion 0, got %v", rate)
	}
	missing := eng.MissingRequiredFields()
	if len(missing) != 13 {
		t.Fatalf("expected 13 missing fields, got %d", len(missing))
	}
	for i := 1; i < len(missing); i++ {
		if missing[i-1].Priority > missing[i].Priority {
			t.Fatalf("missing fields not sorted by priority: %+v", missing)
		}
	}
	if missing[0].Field != "departure.floor" || missing[len(missing)-1].Field != "contact.phone" {
		t.Fatalf("unexpected order: first %s last %s", missing[0].Field, missing[len(missing)-1].Field)
	}
	if missing[0].QuestionTemplate != "출발지 층수를 알려주세요" {
		t.Fatalf("unexpected template %q", missing[0].QuestionTemplate)
	}
}

func TestFillingRequiredFieldsEnablesSubmit(t *testing.T) {
	eng := newEngine(t)
	prev := eng.CompletionRate()
	for _, rv := range requiredValues {
		if err := eng.SetFieldValue(rv.path, rv.value, domain.ConfidenceForm); err != nil {
			t.Fatalf("set %s: %v", rv.path, err)
		}
		rate := eng.CompletionRate()
		if rate < prev {
			t.Fatalf("completion decreased after %s: %v -> %v", rv.path, prev, rate)
		}
		prev = rate
	}
	if rate := eng.CompletionRate(); rate != 1.0 {
		t.Fatalf("expected completion 1.0, got %v", rate)
	}
	if !eng.CanSubmit() {
		t.Fatalf("expected submittable, missing %+v", eng.MissingRequiredFields())
	}
	s := eng.Schema()
	if !s.Status.ReadyForSubmit || s.Status.CompletionRate != 1.0 || len(s.Status.MissingRequired) != 0 {
		t.Fatalf("status not recomputed: %+v", s.Status)
	}
	if s.Meta.Source != domain.SourceForm {
		t.Fatalf("expected source form, got %s", s.Meta.Source)
	}
}

func TestFloorUnknownCountsAsAnswered(t *testing.T) {
	eng := newEngine(t)
	if err := eng.ProcessAnswer("departure_floor", "모름"); err != nil {
		t.Fatalf("answer floor: %v", err)
	}
	for _, m := range eng.MissingRequiredFields() {
		if m.Field == "departure.floor" {
			t.Fatalf("departure.floor should not be missing after an explicit unknown")
		}
	}
	if eng.CompletionRate() <= 0 {
		t.Fatalf("expected completion to increase")
	}
}

func TestApplyExternalParseConfidenceGate(t *testing.T) {
	eng := newEngine(t)
	patch := domain.Patch{"move": {"type": "full_pack"}}
	if err := eng.ApplyExternalParse(patch, map[string]float64{"move.type": 0.3}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if eng.IsCompleted("move_type") {
		t.Fatalf("low confidence must not complete the step")
	}
	fc := eng.Schema().Status.FieldConfidence["move.type"]
	if fc.Confidence != 0.3 || fc.Source != domain.ConfidenceChat || fc.Value != "full_pack" {
		t.Fatalf("unexpected provenance %+v", fc)
	}

	eng = newEngine(t)
	if err := eng.ApplyExternalParse(patch, map[string]float64{"move.type": 0.95}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !eng.IsCompleted("move_type") {
		t.Fatalf("high confidence should complete move_type")
	}
	for _, st := range []string{"move_date", "move_category", "square_footage"} {
		if err := eng.ProcessAnswer(st, answerFor(st)); err != nil {
			t.Fatalf("answer %s: %v", st, err)
		}
	}
	cur, ok := eng.CurrentStep()
	if !ok || cur.ID != "time_slot" {
		t.Fatalf("expected time_slot next, got %v %v", cur.ID, ok)
	}
	if eng.Schema().Meta.Source != domain.SourceMixed {
		t.Fatalf("expected mixed source, got %s", eng.Schema().Meta.Source)
	}
}

func answerFor(id string) any {
	switch id {
	case "move_date":
		return "2025-06-01"
	case "move_category":
		return "one_room"
	case "square_footage":
		return "15_25"
	case "move_type":
		return "general"
	case "time_slot":
		return "morning"
	case "departure_address":
		return "강남구 역삼동"
	case "departure_transport":
		return "elevator"
	case "departure_floor":
		return 3
	case "arrival_address":
		return "마포구 합정동"
	case "arrival_transport":
		return "stairs"
	case "arrival_floor":
		return 2
	case "vehicle_preference":
		return "1"
	case "customer_participation":
		return false
	case "extra_requests":
		return "냉장고 1대"
	case "additional_services":
		return []any{"cleaning"}
	case "contact_verification":
		return map[string]any{"name": "홍길동", "phone": "010-1234-5678"}
	}
	return nil
}

func TestFailedParseChangesNothing(t *testing.T) {
	eng := newEngine(t)
	before := eng.Snapshot()
	err := eng.ApplyExternalParse(domain.Patch{"move": {"type": "full_pack"}, "pricing": {"total": 1}}, map[string]float64{"move.type": 1})
	if err == nil {
		t.Fatalf("expected merge error")
	}
	if !reflect.DeepEqual(before, eng.Snapshot()) {
		t.Fatalf("state changed after failed parse")
	}
}

func TestWalkThroughFlow(t *testing.T) {
	eng := newEngine(t)
	for i := 0; i < 20; i++ {
		st, ok := eng.CurrentStep()
		if !ok {
			break
		}
		if err := eng.ProcessAnswer(st.ID, answerFor(st.ID)); err != nil {
			t.Fatalf("answer %s: %v", st.ID, err)
		}
	}
	if _, ok := eng.CurrentStep(); ok {
		t.Fatalf("expected flow to finish")
	}
	if !eng.CanSubmit() {
		t.Fatalf("expected submittable, missing %+v", eng.MissingRequiredFields())
	}
	s := eng.Schema()
	if s.Services.LadderTruck != domain.LadderNotRequired {
		t.Fatalf("expected ladder truck not required, got %s", s.Services.LadderTruck)
	}
	if got := len(eng.Completed()); got != 16 {
		t.Fatalf("expected 16 completed steps, got %d", got)
	}
}

func TestSkipIsRetroactive(t *testing.T) {
	eng := newEngine(t)
	if err := eng.ProcessAnswer("move_type", "truck"); err != nil {
		t.Fatal(err)
	}
	if err := eng.ProcessAnswer("vehicle_preference", "2"); err != nil {
		t.Fatal(err)
	}
	if err := eng.ProcessAnswer("move_type", "full_pack"); err != nil {
		t.Fatal(err)
	}
	for _, st := range eng.ActiveSteps() {
		if st.ID == "vehicle_preference" {
			t.Fatalf("vehicle_preference should be skipped for full_pack")
		}
	}
	if eng.IsCompleted("vehicle_preference") {
		t.Fatalf("skipped step must not stay completed")
	}
	if _, ok := eng.Answer("vehicle_preference"); ok {
		t.Fatalf("skipped step must lose its answer")
	}
	if err := eng.ProcessAnswer("vehicle_preference", "1"); !errors.As(err, new(engine.StepNotActiveError)) {
		t.Fatalf("expected StepNotActiveError, got %v", err)
	}
	if err := eng.ProcessAnswer("move_type", "general"); err != nil {
		t.Fatal(err)
	}
	if eng.IsCompleted("vehicle_preference") {
		t.Fatalf("reintroduced step must be re-askable")
	}
}

func TestActiveStepsIdempotent(t *testing.T) {
	eng := newEngine(t)
	if err := eng.ProcessAnswer("move_type", "half_pack"); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(eng.ActiveSteps(), eng.ActiveSteps()) {
		t.Fatalf("active steps differ between calls")
	}
}

func TestUnknownStep(t *testing.T) {
	eng := newEngine(t)
	var unknown engine.UnknownStepError
	if err := eng.ProcessAnswer("favourite_color", "blue"); !errors.As(err, &unknown) || unknown.StepID != "favourite_color" {
		t.Fatalf("expected UnknownStepError, got %v", err)
	}
	if err := eng.RevertToStep("favourite_color"); !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownStepError, got %v", err)
	}
}

func TestInvalidAnswerLeavesStepOpen(t *testing.T) {
	eng := newEngine(t)
	err := eng.ProcessAnswer("move_type", "teleport")
	var invalid steps.InvalidAnswerError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidAnswerError, got %v", err)
	}
	if eng.IsCompleted("move_type") {
		t.Fatalf("invalid answer must not complete the step")
	}
}

func TestRevertToStep(t *testing.T) {
	eng := newEngine(t)
	for _, id := range []string{"move_date", "move_category", "square_footage", "move_type", "time_slot", "departure_address", "departure_transport"} {
		if err := eng.ProcessAnswer(id, answerFor(id)); err != nil {
			t.Fatalf("answer %s: %v", id, err)
		}
	}
	if err := eng.ProcessAnswer("move_type", "full_pack"); err != nil {
		t.Fatal(err)
	}
	if err := eng.RevertToStep("vehicle_preference"); !errors.As(err, new(engine.StepNotActiveError)) {
		t.Fatalf("expected StepNotActiveError, got %v", err)
	}
	if err := eng.RevertToStep("time_slot"); err != nil {
		t.Fatalf("revert: %v", err)
	}
	for _, id := range []string{"time_slot", "departure_address", "departure_transport"} {
		if eng.IsCompleted(id) {
			t.Fatalf("%s should be reverted", id)
		}
	}
	if !eng.IsCompleted("move_type") {
		t.Fatalf("earlier steps must stay completed")
	}
	cur, ok := eng.CurrentStep()
	if !ok || cur.ID != "time_slot" {
		t.Fatalf("expected cursor at time_slot, got %s", cur.ID)
	}
	if eng.Schema().Departure.Address == nil {
		t.Fatalf("revert must keep recorded values")
	}
	last, ok := eng.LastCompleted()
	if !ok || last.ID != "move_type" {
		t.Fatalf("expected last completed move_type, got %s", last.ID)
	}
}

func TestSchemaValuesAreNotMutated(t *testing.T) {
	eng := newEngine(t)
	before := eng.Schema()
	if err := eng.ProcessAnswer("move_category", "office"); err != nil {
		t.Fatal(err)
	}
	if before.Move.Category != domain.CategoryUnknown || len(before.Status.FieldConfidence) != 0 {
		t.Fatalf("earlier schema value was mutated")
	}
}

func TestMarkSubmitted(t *testing.T) {
	eng := newEngine(t)
	if err := eng.MarkSubmitted(); !errors.Is(err, engine.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	for _, rv := range requiredValues {
		if err := eng.SetFieldValue(rv.path, rv.value, domain.ConfidenceForm); err != nil {
			t.Fatal(err)
		}
	}
	if err := eng.MarkSubmitted(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	s := eng.Schema()
	if s.Status.SubmittedAt == nil || *s.Status.SubmittedAt != "2025-05-01T00:00:00Z" {
		t.Fatalf("submittedAt not stamped: %v", s.Status.SubmittedAt)
	}
	if domain.EstimateStatus(s) != domain.EstimateSubmitted {
		t.Fatalf("expected submitted status")
	}
	if err := eng.MarkSubmitted(); !errors.Is(err, engine.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
}

func TestSnapshotRestore(t *testing.T) {
	eng := newEngine(t)
	for _, id := range []string{"move_date", "move_category", "square_footage"} {
		if err := eng.ProcessAnswer(id, answerFor(id)); err != nil {
			t.Fatal(err)
		}
	}
	snap := eng.Snapshot()

	other := newEngine(t)
	if err := other.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !reflect.DeepEqual(eng.Completed(), other.Completed()) {
		t.Fatalf("completed differ: %v vs %v", eng.Completed(), other.Completed())
	}
	cur, _ := other.CurrentStep()
	if cur.ID != "move_type" {
		t.Fatalf("expected move_type, got %s", cur.ID)
	}

	snap.Completed = append(snap.Completed, "bogus")
	if err := other.Restore(snap); err == nil {
		t.Fatalf("expected error for unknown step in snapshot")
	}
}

func TestNewWithSchemaRecomputesStatus(t *testing.T) {
	s := domain.NewSchema(time.Now(), "req-2")
	s.Move.Category = domain.CategoryApartment
	s.Departure.TransportMethod = domain.TransportElevator
	s.Departure.HasElevator = domain.Yes
	s.Status.ReadyForSubmit = true
	s.Status.CompletionRate = 1

	eng := engine.NewWithSchema(s)
	got := eng.Schema()
	if got.Status.ReadyForSubmit {
		t.Fatalf("stored readiness must not be trusted")
	}
	if want := 2.0 / 13.0; got.Status.CompletionRate != want {
		t.Fatalf("expected %v, got %v", want, got.Status.CompletionRate)
	}
	if !eng.IsCompleted("move_category") || !eng.IsCompleted("departure_transport") {
		t.Fatalf("answered steps should resume as completed: %v", eng.Completed())
	}
	if eng.IsCompleted("move_date") {
		t.Fatalf("unanswered steps must stay open")
	}
}

func TestApplyRecovery(t *testing.T) {
	eng := newEngine(t)
	st, ok := steps.Recovery("contact.name")
	if !ok {
		t.Fatalf("missing recovery step")
	}
	if err := eng.ApplyRecovery(st, "김철수"); err != nil {
		t.Fatalf("recovery: %v", err)
	}
	if name := eng.Schema().Contact.Name; name == nil || *name != "김철수" {
		t.Fatalf("name not written")
	}
	st, _ = steps.Recovery("departure.hasElevator")
	if err := eng.ApplyRecovery(st, "ladder"); err != nil {
		t.Fatalf("recovery: %v", err)
	}
	if !eng.IsCompleted("departure_transport") {
		t.Fatalf("owning step should complete")
	}
	if eng.Schema().Services.LadderTruck != domain.LadderRequired {
		t.Fatalf("recovery should reuse the transport transform")
	}
}

func TestEngineMaintainedSectionsAreReadOnly(t *testing.T) {
	eng := newEngine(t)
	if err := eng.SetFieldValue("status.submittedAt", "2025-05-01T00:00:00Z", domain.ConfidenceForm); !errors.Is(err, schemapath.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath for status.submittedAt, got %v", err)
	}
	if err := eng.SetFieldValue("status.fieldConfidence", map[string]any{}, domain.ConfidenceForm); !errors.Is(err, schemapath.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath for status.fieldConfidence, got %v", err)
	}
	patch := domain.Patch{"move": {"timeSlot": "morning"}, "meta": {"source": "guided"}}
	if err := eng.MergeSchemaUpdates(patch, domain.ConfidenceForm); !errors.Is(err, schemapath.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath for meta patch, got %v", err)
	}
	if err := eng.ApplyExternalParse(domain.Patch{"status": {"readyForSubmit": true}}, nil); !errors.Is(err, schemapath.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath for parsed status, got %v", err)
	}
	s := eng.Schema()
	if s.Status.SubmittedAt != nil || s.Move.TimeSlot != domain.SlotUnknown {
		t.Fatalf("rejected writes must leave the record unchanged: %+v %s", s.Status.SubmittedAt, s.Move.TimeSlot)
	}
	if domain.EstimateStatus(s) != domain.EstimateDraft {
		t.Fatalf("expected draft, got %s", domain.EstimateStatus(s))
	}
}

func TestParsedTransportRederivesLadderTruck(t *testing.T) {
	eng := newEngine(t)
	for _, a := range []struct{ step, value string }{{"departure_transport", "ladder"}, {"arrival_transport", "stairs"}} {
		if err := eng.ProcessAnswer(a.step, a.value); err != nil {
			t.Fatalf("answer %s: %v", a.step, err)
		}
	}
	if eng.Schema().Services.LadderTruck != domain.LadderRequired {
		t.Fatalf("expected ladder truck required, got %s", eng.Schema().Services.LadderTruck)
	}
	patch := domain.Patch{"departure": {"hasElevator": "yes", "transportMethod": "elevator"}}
	if err := eng.ApplyExternalParse(patch, map[string]float64{"departure.hasElevator": 0.95}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	s := eng.Schema()
	if s.Departure.TransportMethod != domain.TransportElevator || s.Services.LadderTruck != domain.LadderNotRequired {
		t.Fatalf("expected elevator and not_required, got %s %s", s.Departure.TransportMethod, s.Services.LadderTruck)
	}

	if err := eng.SetFieldValue("arrival.transportMethod", "ladder", domain.ConfidenceForm); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := eng.Schema().Services.LadderTruck; got != domain.LadderRequired {
		t.Fatalf("expected required after arrival ladder, got %s", got)
	}
}
