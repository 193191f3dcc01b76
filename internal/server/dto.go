package server

import (
	"encoding/json"
	"strings"

	"moveline/internal/chat"
	"moveline/internal/domain"
	"moveline/internal/formsync"
	"moveline/internal/session"
)

type AnswerRequest struct {
	StepID  string `json:"step_id" minLength:"1"`
	Value   any    `json:"value"`
	Display string `json:"display,omitempty"`
}

type MessageRequest struct {
	Text string `json:"text" minLength:"1"`
}

type RevertRequest struct {
	StepID string `json:"step_id" minLength:"1"`
}

type ModeRequest struct {
	Mode string `json:"mode" enum:"guided,free_text"`
}

type FieldRequest struct {
	Path  string `json:"path" minLength:"1" example:"departure.address"`
	Value any    `json:"value"`
}

type TokenRequest struct {
	Subject string   `json:"subject" minLength:"1"`
	Roles   []string `json:"roles,omitempty"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

// ProgressResponse summarises flow progress.
type ProgressResponse struct {
	CompletionRate    float64               `json:"completion_rate"`
	StepProgress      float64               `json:"step_progress"`
	MissingRequired   []domain.MissingField `json:"missing_required"`
	CanSubmit         bool                  `json:"can_submit"`
	CompletedSteps    []string              `json:"completed_steps"`
	ActiveSteps       []string              `json:"active_steps"`
	Recovering        bool                  `json:"recovering"`
	AttemptedRecovery []string              `json:"attempted_recovery"`
}

type SessionResponse struct {
	ID          string           `json:"id"`
	EstimateID  string           `json:"estimate_id,omitempty"`
	Mode        string           `json:"mode" enum:"guided,free_text"`
	Loading     bool             `json:"loading"`
	CurrentStep string           `json:"current_step,omitempty"`
	Messages    []chat.Message   `json:"messages"`
	Progress    ProgressResponse `json:"progress"`
	Schema      domain.Schema    `json:"schema"`
	Form        formsync.Form    `json:"form"`
	Token       string           `json:"token,omitempty"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEstimates struct {
	Items []domain.Estimate `json:"items"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func sessionResponse(s *session.Session) SessionResponse {
	c := s.Chat()
	st := c.Status()
	msgs := c.Messages()
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return SessionResponse{
		ID:          s.ID,
		EstimateID:  s.EstimateID(),
		Mode:        string(c.Mode()),
		Loading:     c.Loading(),
		CurrentStep: c.CurrentStepID(),
		Messages:    msgs,
		Progress: ProgressResponse{
			CompletionRate:    st.CompletionRate,
			StepProgress:      st.StepProgress,
			MissingRequired:   nonNilSlice(st.Missing),
			CanSubmit:         st.CanSubmit,
			CompletedSteps:    nonNilSlice(st.Completed),
			ActiveSteps:       nonNilSlice(st.ActiveSteps),
			Recovering:        st.Recovering,
			AttemptedRecovery: nonNilSlice(st.Attempted),
		},
		Schema: c.Schema(),
		Form:   s.Form(),
	}
}

func eventResponse(e domain.Event) EventResponse {
	payload := map[string]any{}
	if strings.TrimSpace(e.Payload) != "" {
		if err := json.Unmarshal([]byte(e.Payload), &payload); err != nil {
			payload = map[string]any{"raw": e.Payload}
		}
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
