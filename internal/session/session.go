// Package session hosts live conversations: each session pairs a chat
// controller with a form binder, autosaves to the snapshot cache and
// persists estimates on demand.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"moveline/internal/ai"
	"moveline/internal/chat"
	"moveline/internal/domain"
	"moveline/internal/engine"
	"moveline/internal/formsync"
	"moveline/internal/store"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrNoStore  = errors.New("no estimate store configured")
)

// Cache keeps session snapshots outside the process.
type Cache interface {
	Put(ctx context.Context, id string, v any) error
	Get(ctx context.Context, id string, v any) (bool, error)
	Delete(ctx context.Context, id string) error
}

// SavedFunc observes a persisted estimate and the events the save emitted.
type SavedFunc func(ctx context.Context, est domain.Estimate, events []string)

type Options struct {
	Parser ai.Parser
	Store  store.Estimates
	Cache  Cache
	Log    *zap.Logger
	Now    func() time.Time
	NewID  func() string
	Saved  SavedFunc
}

// Session is one live conversation.
type Session struct {
	ID string

	chat   *chat.Controller
	binder *formsync.Binder

	mu         sync.Mutex
	estimateID string
	status     string
	createdAt  time.Time
	updatedAt  time.Time
}

func (s *Session) Chat() *chat.Controller { return s.chat }

func (s *Session) Form() formsync.Form { return s.binder.Form() }

func (s *Session) EstimateID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.estimateID
}

func (s *Session) persistedStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Snapshot is the cached form of a session.
type Snapshot struct {
	ID         string     `json:"id"`
	EstimateID string     `json:"estimateId,omitempty"`
	Status     string     `json:"status,omitempty"`
	Chat       chat.State `json:"chat"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func (s *Session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:         s.ID,
		EstimateID: s.estimateID,
		Status:     s.status,
		Chat:       s.chat.Snapshot(),
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}
}

// Manager owns the live sessions of a process.
type Manager struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(opts Options) *Manager {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Parser == nil {
		opts.Parser = ai.Disabled{}
	}
	return &Manager{opts: opts, sessions: map[string]*Session{}}
}

func (m *Manager) newSession(id string, eng *engine.Engine) *Session {
	eng.Now = m.opts.Now
	eng.NewID = m.opts.NewID
	ctrl := chat.New(eng, m.opts.Parser, m.opts.Log.With(zap.String("session_id", id)))
	ctrl.Now = m.opts.Now
	ctrl.NewID = m.opts.NewID
	now := m.opts.Now()
	return &Session{
		ID:        id,
		chat:      ctrl,
		binder:    formsync.NewBinder(ctrl),
		createdAt: now,
		updatedAt: now,
	}
}

func (m *Manager) track(ctx context.Context, s *Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.autosave(ctx, s)
}

// Create starts a new conversation with a fresh record.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	eng := engine.New()
	eng.Now = m.opts.Now
	eng.NewID = m.opts.NewID
	eng.Reset()
	s := m.newSession(m.opts.NewID(), eng)
	s.chat.InitializeChat()
	s.binder.Sync(s.chat.Schema())
	m.track(ctx, s)
	m.opts.Log.Info("session created", zap.String("session_id", s.ID))
	return s, nil
}

// Resume opens a new session over a stored estimate.
func (m *Manager) Resume(ctx context.Context, estimateID string) (*Session, error) {
	if m.opts.Store == nil {
		return nil, ErrNoStore
	}
	est, err := m.opts.Store.Get(ctx, estimateID)
	if err != nil {
		return nil, err
	}
	s := m.newSession(m.opts.NewID(), engine.NewWithSchema(est.Schema))
	s.estimateID = est.ID
	s.status = est.Status
	s.chat.InitializeChat()
	s.binder.Sync(s.chat.Schema())
	m.track(ctx, s)
	m.opts.Log.Info("session resumed", zap.String("session_id", s.ID), zap.String("estimate_id", est.ID))
	return s, nil
}

// Get returns a live session, restoring it from the cache on a miss.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}
	if m.opts.Cache == nil {
		return nil, ErrNotFound
	}
	var snap Snapshot
	hit, err := m.opts.Cache.Get(ctx, id, &snap)
	if err != nil {
		m.opts.Log.Warn("session cache read failed", zap.String("session_id", id), zap.Error(err))
		return nil, ErrNotFound
	}
	if !hit {
		return nil, ErrNotFound
	}
	s = m.newSession(id, engine.New())
	if err := s.chat.Restore(snap.Chat); err != nil {
		return nil, eris.Wrapf(err, "restore session %s", id)
	}
	s.estimateID = snap.EstimateID
	s.status = snap.Status
	s.createdAt = snap.CreatedAt
	s.updatedAt = snap.UpdatedAt
	s.binder.Sync(s.chat.Schema())

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.sessions[id] = s
	m.mu.Unlock()
	m.opts.Log.Info("session restored from cache", zap.String("session_id", id))
	return s, nil
}

// Do runs fn against a session, then refreshes the form view and autosaves.
// fn runs without the session lock so a slow parse does not block other
// requests; the controller serialises its own state.
func (m *Manager) Do(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	fnErr := fn(s)
	m.after(ctx, s)
	return s, fnErr
}

func (m *Manager) after(ctx context.Context, s *Session) {
	s.binder.Sync(s.chat.Schema())
	s.mu.Lock()
	s.updatedAt = m.opts.Now()
	s.mu.Unlock()
	m.autosave(ctx, s)
}

func (m *Manager) autosave(ctx context.Context, s *Session) {
	if m.opts.Cache == nil {
		return
	}
	if err := m.opts.Cache.Put(ctx, s.ID, s.snapshot()); err != nil {
		m.opts.Log.Warn("session autosave failed", zap.String("session_id", s.ID), zap.Error(err))
	}
}

// SubmitForm writes a form edit through the binder.
func (m *Manager) SubmitForm(ctx context.Context, id string, f formsync.Form) (*Session, error) {
	return m.Do(ctx, id, func(s *Session) error {
		return s.binder.Submit(f)
	})
}

// Reset clears the conversation and detaches the stored estimate.
func (m *Manager) Reset(ctx context.Context, id string) (*Session, error) {
	return m.Do(ctx, id, func(s *Session) error {
		s.chat.ClearChat()
		s.chat.InitializeChat()
		s.mu.Lock()
		s.estimateID, s.status = "", ""
		s.mu.Unlock()
		return nil
	})
}

// Save persists the record, inserting on first save.
func (m *Manager) Save(ctx context.Context, id string) (domain.Estimate, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return domain.Estimate{}, err
	}
	est, err := m.save(ctx, s)
	if err != nil {
		return domain.Estimate{}, err
	}
	m.autosave(ctx, s)
	return est, nil
}

func (m *Manager) save(ctx context.Context, s *Session) (domain.Estimate, error) {
	if m.opts.Store == nil {
		return domain.Estimate{}, ErrNoStore
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	schema := s.chat.Schema()
	var (
		est  domain.Estimate
		prev *domain.Estimate
		err  error
	)
	if s.estimateID == "" {
		est, err = m.opts.Store.Insert(ctx, schema, s.ID)
	} else {
		prev = &domain.Estimate{ID: s.estimateID, Status: s.status}
		est, err = m.opts.Store.Update(ctx, s.estimateID, schema, s.ID)
	}
	if err != nil {
		return domain.Estimate{}, eris.Wrapf(err, "save session %s", s.ID)
	}
	s.estimateID = est.ID
	s.status = est.Status
	m.opts.Log.Info("estimate saved",
		zap.String("session_id", s.ID),
		zap.String("estimate_id", est.ID),
		zap.String("status", est.Status),
		zap.Float64("completion_rate", est.CompletionRate))
	if m.opts.Saved != nil {
		m.opts.Saved(ctx, est, store.EventsFor(prev, est))
	}
	return est, nil
}

// Submit stamps the record as submitted and persists it.
func (m *Manager) Submit(ctx context.Context, id string) (domain.Estimate, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return domain.Estimate{}, err
	}
	if m.opts.Store == nil {
		return domain.Estimate{}, ErrNoStore
	}
	if err := s.chat.MarkSubmitted(); err != nil {
		// a stamped record whose save failed may be retried
		if !errors.Is(err, engine.ErrAlreadySubmitted) || s.persistedStatus() == domain.EstimateSubmitted {
			return domain.Estimate{}, err
		}
	}
	est, err := m.save(ctx, s)
	m.after(ctx, s)
	if err != nil {
		return domain.Estimate{}, err
	}
	return est, nil
}

// Close drops a session from memory and the cache.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if m.opts.Cache != nil {
		if err := m.opts.Cache.Delete(ctx, id); err != nil {
			return err
		}
	} else if !ok {
		return ErrNotFound
	}
	return nil
}

// Len is the number of sessions held in memory.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
