// Package engine drives the guided flow over one canonical moving request:
// it owns the record, the completed-step set and the recorded answers.
package engine

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"moveline/internal/domain"
	"moveline/internal/schemapath"
	"moveline/internal/steps"
)

// AutoCompleteThreshold is the confidence at which a parsed value completes
// its owning step.
const AutoCompleteThreshold = 0.8

// Engine is session scoped and not safe for concurrent use. Every mutation
// installs a new record, so values returned by Schema are never changed.
type Engine struct {
	Now   func() time.Time
	NewID func() string

	schema    domain.Schema
	completed map[string]bool
	answers   map[string]any
	cursor    string
}

// New returns an engine over a fresh record.
func New() *Engine {
	e := &Engine{Now: time.Now, NewID: uuid.NewString}
	e.Reset()
	return e
}

// NewWithSchema resumes from a stored record. Status is recomputed and
// steps whose values are already present count as completed.
func NewWithSchema(s domain.Schema) *Engine {
	e := &Engine{Now: time.Now, NewID: uuid.NewString}
	e.schema = Recompute(s)
	e.completed = map[string]bool{}
	e.answers = map[string]any{}
	for _, st := range steps.Active(e.schema) {
		if v, ok := answered(st, e.schema); ok {
			e.completed[st.ID] = true
			e.answers[st.ID] = v
		}
	}
	return e
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

// Schema returns the current record.
func (e *Engine) Schema() domain.Schema {
	return e.schema
}

// ActiveSteps is the catalog minus the steps skipped for the current record.
func (e *Engine) ActiveSteps() []steps.Step {
	return steps.Active(e.schema)
}

// CurrentStep is the step the flow is waiting on, or false when every active
// step is complete.
func (e *Engine) CurrentStep() (steps.Step, bool) {
	active := e.ActiveSteps()
	if e.cursor != "" && !e.completed[e.cursor] {
		for _, st := range active {
			if st.ID == e.cursor {
				return st, true
			}
		}
	}
	for _, st := range active {
		if !e.completed[st.ID] {
			return st, true
		}
	}
	return steps.Step{}, false
}

// LastCompleted is the latest active step that has been completed.
func (e *Engine) LastCompleted() (steps.Step, bool) {
	active := e.ActiveSteps()
	for i := len(active) - 1; i >= 0; i-- {
		if e.completed[active[i].ID] {
			return active[i], true
		}
	}
	return steps.Step{}, false
}

// Completed lists completed step ids in catalog order.
func (e *Engine) Completed() []string {
	out := []string{}
	for _, st := range steps.All() {
		if e.completed[st.ID] {
			out = append(out, st.ID)
		}
	}
	return out
}

func (e *Engine) IsCompleted(stepID string) bool {
	return e.completed[stepID]
}

// Answer returns the raw value recorded for a step.
func (e *Engine) Answer(stepID string) (any, bool) {
	v, ok := e.answers[stepID]
	return v, ok
}

// ProcessAnswer applies an answer to a catalog step and completes it.
func (e *Engine) ProcessAnswer(stepID string, value any) error {
	st, ok := steps.ByID(stepID)
	if !ok {
		return UnknownStepError{StepID: stepID}
	}
	if steps.IsSkipped(stepID, e.schema) {
		return StepNotActiveError{StepID: stepID}
	}
	next, err := steps.Apply(st, value, e.schema)
	if err != nil {
		return err
	}
	next = withProvenance(next, []string{st.Path}, 1, domain.ConfidenceGuided)
	e.completed[st.ID] = true
	e.answers[st.ID] = value
	if e.cursor == st.ID {
		e.cursor = ""
	}
	e.install(next, domain.ConfidenceGuided)
	return nil
}

// ApplyRecovery answers a recovery step. The owning catalog step is
// completed when it is active.
func (e *Engine) ApplyRecovery(st steps.Step, value any) error {
	next, err := steps.Apply(st, value, e.schema)
	if err != nil {
		return err
	}
	next = withProvenance(next, []string{st.Path}, 1, domain.ConfidenceGuided)
	if owner, ok := steps.ForPath(st.Path); ok && !steps.IsSkipped(owner.ID, next) {
		e.completed[owner.ID] = true
		e.answers[owner.ID] = value
	}
	e.install(next, domain.ConfidenceGuided)
	return nil
}

// RevertToStep discards completion and answers for stepID and every later
// active step. Recorded values stay in the record until re-answered.
func (e *Engine) RevertToStep(stepID string) error {
	if _, ok := steps.ByID(stepID); !ok {
		return UnknownStepError{StepID: stepID}
	}
	active := e.ActiveSteps()
	idx := -1
	for i, st := range active {
		if st.ID == stepID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return StepNotActiveError{StepID: stepID}
	}
	completed := make(map[string]bool, len(e.completed))
	for id, done := range e.completed {
		completed[id] = done
	}
	answers := make(map[string]any, len(e.answers))
	for id, v := range e.answers {
		answers[id] = v
	}
	for _, st := range active[idx:] {
		delete(completed, st.ID)
		delete(answers, st.ID)
	}
	e.completed, e.answers, e.cursor = completed, answers, stepID
	return nil
}

// ApplyExternalParse merges a parsed patch. Every path in confidence gets a
// provenance entry; paths at or above AutoCompleteThreshold complete their
// owning step. On error nothing changes.
func (e *Engine) ApplyExternalParse(patch domain.Patch, confidence map[string]float64) error {
	if err := checkWritable(patch.Paths()...); err != nil {
		return err
	}
	next, err := schemapath.Merge(e.schema, patch)
	if err != nil {
		return err
	}
	paths := make([]string, 0, len(confidence))
	for path := range confidence {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	fc := cloneConfidence(next.Status.FieldConfidence)
	type completion struct {
		id    string
		value any
	}
	var done []completion
	for _, path := range paths {
		v, ok := schemapath.Get(next, path)
		if !ok {
			continue
		}
		c := clamp(confidence[path])
		fc[path] = domain.FieldConfidence{Value: v, Confidence: c, Source: domain.ConfidenceChat}
		if c < AutoCompleteThreshold {
			continue
		}
		if st, ok := steps.ForPath(path); ok {
			done = append(done, completion{id: st.ID, value: v})
		}
	}
	next.Status.FieldConfidence = fc
	for _, c := range done {
		e.completed[c.id] = true
		e.answers[c.id] = c.value
		if e.cursor == c.id {
			e.cursor = ""
		}
	}
	e.install(next, domain.ConfidenceChat)
	return nil
}

// SetFieldValue writes one path outside the step flow.
func (e *Engine) SetFieldValue(path string, value any, source domain.ConfidenceSource) error {
	if err := checkWritable(path); err != nil {
		return err
	}
	next, err := schemapath.Set(e.schema, path, value)
	if err != nil {
		return err
	}
	e.install(withProvenance(next, changedPaths(e.schema, next, []string{path}), 1, source), source)
	return nil
}

// MergeSchemaUpdates merges a patch outside the step flow. Provenance is
// recorded for the fields the patch actually changed.
func (e *Engine) MergeSchemaUpdates(patch domain.Patch, source domain.ConfidenceSource) error {
	if err := checkWritable(patch.Paths()...); err != nil {
		return err
	}
	next, err := schemapath.Merge(e.schema, patch)
	if err != nil {
		return err
	}
	paths := patch.Paths()
	sort.Strings(paths)
	e.install(withProvenance(next, changedPaths(e.schema, next, paths), 1, source), source)
	return nil
}

// Reset starts over with a fresh record.
func (e *Engine) Reset() {
	e.schema = Recompute(domain.NewSchema(e.now(), e.newID()))
	e.completed = map[string]bool{}
	e.answers = map[string]any{}
	e.cursor = ""
}

// MarkSubmitted stamps the submission time.
func (e *Engine) MarkSubmitted() error {
	if e.schema.Status.SubmittedAt != nil {
		return ErrAlreadySubmitted
	}
	if !CanSubmit(e.schema) {
		return ErrNotReady
	}
	next := e.schema
	next.Status.SubmittedAt = domain.Ptr(e.now().UTC().Format(time.RFC3339))
	e.install(next, domain.ConfidenceSystem)
	return nil
}

func (e *Engine) CompletionRate() float64 {
	return CompletionRate(e.schema)
}

func (e *Engine) MissingRequiredFields() []domain.MissingField {
	return MissingRequiredFields(e.schema)
}

func (e *Engine) CanSubmit() bool {
	return CanSubmit(e.schema)
}

// checkWritable rejects the engine-maintained sections.
func checkWritable(paths ...string) error {
	for _, path := range paths {
		section, _, _ := strings.Cut(path, ".")
		if section == "status" || section == "meta" {
			return fmt.Errorf("%w: %s is maintained by the engine", schemapath.ErrInvalidPath, path)
		}
	}
	return nil
}

// install makes next the current record. A non-system source that wrote
// provenance updates meta.source. A transport change that left
// services.ladderTruck alone re-derives it from both locations.
func (e *Engine) install(next domain.Schema, source domain.ConfidenceSource) {
	prev := e.schema
	moved := next.Departure.TransportMethod != prev.Departure.TransportMethod ||
		next.Arrival.TransportMethod != prev.Arrival.TransportMethod
	if moved && next.Services.LadderTruck == prev.Services.LadderTruck {
		next.Services.LadderTruck = steps.LadderRequirement(next.Departure.TransportMethod, next.Arrival.TransportMethod, next.Services.LadderTruck)
	}
	if source != domain.ConfidenceSystem && len(next.Status.FieldConfidence) > 0 && !sameConfidence(e.schema, next) {
		next.Meta.Source = mergeSource(e.schema, source)
	}
	next.Meta.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	e.schema = Recompute(next)
	for _, st := range steps.All() {
		if steps.IsSkipped(st.ID, e.schema) {
			delete(e.completed, st.ID)
			delete(e.answers, st.ID)
		}
	}
}

func sameConfidence(prev, next domain.Schema) bool {
	return reflect.DeepEqual(prev.Status.FieldConfidence, next.Status.FieldConfidence)
}

// mergeSource reports mixed once a second surface has written values.
func mergeSource(prev domain.Schema, source domain.ConfidenceSource) domain.InputSource {
	incoming := domain.InputSource(source)
	if len(prev.Status.FieldConfidence) == 0 || prev.Meta.Source == incoming {
		return incoming
	}
	return domain.SourceMixed
}

func withProvenance(s domain.Schema, paths []string, confidence float64, source domain.ConfidenceSource) domain.Schema {
	if len(paths) == 0 {
		return s
	}
	fc := cloneConfidence(s.Status.FieldConfidence)
	for _, path := range paths {
		v, ok := schemapath.Get(s, path)
		if !ok {
			continue
		}
		fc[path] = domain.FieldConfidence{Value: v, Confidence: confidence, Source: source}
	}
	s.Status.FieldConfidence = fc
	return s
}

func changedPaths(prev, next domain.Schema, paths []string) []string {
	var out []string
	for _, path := range paths {
		before, _ := schemapath.Get(prev, path)
		after, _ := schemapath.Get(next, path)
		if !reflect.DeepEqual(before, after) {
			out = append(out, path)
		}
	}
	return out
}

func cloneConfidence(in map[string]domain.FieldConfidence) map[string]domain.FieldConfidence {
	out := make(map[string]domain.FieldConfidence, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// answered reports whether a stored record already holds an answer for st.
func answered(st steps.Step, s domain.Schema) (any, bool) {
	v, ok := schemapath.Get(s, st.Path)
	if !ok {
		return nil, false
	}
	if _, recorded := s.Status.FieldConfidence[st.Path]; recorded {
		return v, true
	}
	switch st.Path {
	case "services":
		return nil, false
	case "contact":
		return v, !blank(s.Contact.Name) && !blank(s.Contact.Phone)
	case "departure.hasElevator", "arrival.hasElevator":
		section := "departure"
		if st.Path == "arrival.hasElevator" {
			section = "arrival"
		}
		loc, _ := s.Location(section)
		return string(loc.TransportMethod), loc.TransportMethod != domain.TransportUnknown
	}
	return v, !isEmpty(s, st.Path, v)
}
