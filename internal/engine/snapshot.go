package engine

import (
	"fmt"

	"moveline/internal/domain"
	"moveline/internal/steps"
)

// Snapshot is the serialisable state of an engine.
type Snapshot struct {
	Schema    domain.Schema  `json:"schema"`
	Completed []string       `json:"completed"`
	Answers   map[string]any `json:"answers"`
	Cursor    string         `json:"cursor,omitempty"`
}

func (e *Engine) Snapshot() Snapshot {
	answers := make(map[string]any, len(e.answers))
	for k, v := range e.answers {
		answers[k] = v
	}
	return Snapshot{
		Schema:    e.schema,
		Completed: e.Completed(),
		Answers:   answers,
		Cursor:    e.cursor,
	}
}

// Restore replaces the engine state with snap. Status is recomputed and
// skipped steps are dropped.
func (e *Engine) Restore(snap Snapshot) error {
	completed := map[string]bool{}
	for _, id := range snap.Completed {
		if _, ok := steps.ByID(id); !ok {
			return fmt.Errorf("restore: %w", UnknownStepError{StepID: id})
		}
		completed[id] = true
	}
	if snap.Cursor != "" {
		if _, ok := steps.ByID(snap.Cursor); !ok {
			return fmt.Errorf("restore cursor: %w", UnknownStepError{StepID: snap.Cursor})
		}
	}
	answers := map[string]any{}
	for id, v := range snap.Answers {
		if completed[id] {
			answers[id] = v
		}
	}
	schema := Recompute(snap.Schema)
	for _, st := range steps.All() {
		if steps.IsSkipped(st.ID, schema) {
			delete(completed, st.ID)
			delete(answers, st.ID)
		}
	}
	e.schema, e.completed, e.answers, e.cursor = schema, completed, answers, snap.Cursor
	return nil
}
