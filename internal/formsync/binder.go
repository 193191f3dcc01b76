package formsync

import (
	"sync"

	"moveline/internal/domain"
)

// Source names the side that wrote last.
type Source string

const (
	SourceNone  Source = ""
	SourceForm  Source = "form"
	SourceStore Source = "store"
)

// Store is the record the form is bound to.
type Store interface {
	Schema() domain.Schema
	MergeSchemaUpdates(patch domain.Patch, source domain.ConfidenceSource) error
}

// Binder relays edits between a form and a store. A form submission marks
// the form as last writer before writing; the next Sync consumes that mark
// instead of overwriting the form with its own echo.
type Binder struct {
	mu    sync.Mutex
	store Store
	form  Form
	last  Source
}

func NewBinder(store Store) *Binder {
	return &Binder{store: store, form: SchemaToForm(store.Schema())}
}

// Form returns the current form view.
func (b *Binder) Form() Form {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.form
}

// LastSource reports the pending last-writer mark.
func (b *Binder) LastSource() Source {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Submit writes f to the store. On failure the form view is unchanged.
func (b *Binder) Submit(f Form) error {
	if err := f.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.last
	b.last = SourceForm
	if err := b.store.MergeSchemaUpdates(FormToSchema(f), domain.ConfidenceForm); err != nil {
		b.last = prev
		return err
	}
	b.form = f
	return nil
}

// Sync propagates a store change to the form. It reports false, and clears
// the mark, when the change is the echo of a form submission.
func (b *Binder) Sync(s domain.Schema) (Form, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == SourceForm {
		b.last = SourceNone
		return b.form, false
	}
	b.form = SchemaToForm(s)
	b.last = SourceStore
	return b.form, true
}
