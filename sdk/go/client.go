// Package movelinesdk is a small client for the Moveline HTTP API.
package movelinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Moveline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. Free text turns wait on the
// parser, so the timeout is generous.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "v1",
		Timeout:  60 * time.Second,
	}
}

type Option struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

// Message is one conversation entry.
type Message struct {
	ID         string   `json:"id"`
	Role       string   `json:"role"`
	Content    string   `json:"content"`
	StepID     string   `json:"stepId,omitempty"`
	Input      string   `json:"input,omitempty"`
	Options    []Option `json:"options,omitempty"`
	Editable   bool     `json:"editable,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Timestamp  string   `json:"timestamp"`
}

type MissingField struct {
	Field            string `json:"field"`
	Priority         int    `json:"priority"`
	QuestionTemplate string `json:"questionTemplate"`
}

type Progress struct {
	CompletionRate    float64        `json:"completion_rate"`
	StepProgress      float64        `json:"step_progress"`
	MissingRequired   []MissingField `json:"missing_required"`
	CanSubmit         bool           `json:"can_submit"`
	CompletedSteps    []string       `json:"completed_steps"`
	ActiveSteps       []string       `json:"active_steps"`
	Recovering        bool           `json:"recovering"`
	AttemptedRecovery []string       `json:"attempted_recovery"`
}

// Session is the API view of a conversation. Schema and Form are left
// raw; decode them into your own types as needed.
type Session struct {
	ID          string          `json:"id"`
	EstimateID  string          `json:"estimate_id,omitempty"`
	Mode        string          `json:"mode"`
	Loading     bool            `json:"loading"`
	CurrentStep string          `json:"current_step,omitempty"`
	Messages    []Message       `json:"messages"`
	Progress    Progress        `json:"progress"`
	Schema      json.RawMessage `json:"schema"`
	Form        json.RawMessage `json:"form"`
	Token       string          `json:"token,omitempty"`
}

// LastReply returns the newest message from the assistant, if any.
func (s Session) LastReply() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == "ai" {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// Step is a guided flow catalog entry (partial).
type Step struct {
	ID       string   `json:"id"`
	Number   int      `json:"number"`
	Question string   `json:"question"`
	Input    string   `json:"input"`
	Options  []Option `json:"options,omitempty"`
	Path     string   `json:"path"`
	Required bool     `json:"required"`
}

// Estimate is a persisted request.
type Estimate struct {
	ID             string          `json:"id"`
	RequestID      string          `json:"request_id"`
	Status         string          `json:"status"`
	Phone          *string         `json:"phone,omitempty"`
	CompletionRate float64         `json:"completion_rate"`
	Schema         json.RawMessage `json:"schema"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
	SubmittedAt    *string         `json:"submitted_at,omitempty"`
}

// Event represents an estimate log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an API error with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// CreateSession starts a conversation. When the server issues a session
// token and the client has none, the client adopts it.
func (c *Client) CreateSession(ctx context.Context) (Session, error) {
	var resp Session
	if err := c.do(ctx, http.MethodPost, "sessions", nil, &resp); err != nil {
		return resp, err
	}
	if c.BearerToken == "" && resp.Token != "" {
		c.BearerToken = resp.Token
	}
	return resp, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodGet, sessionPath(id, ""), nil, &resp)
	return resp, err
}

func (c *Client) CloseSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, sessionPath(id, ""), nil, nil)
}

func (c *Client) Reset(ctx context.Context, id string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, sessionPath(id, "reset"), nil, &resp)
	return resp, err
}

// Answer submits a guided answer for stepID.
func (c *Client) Answer(ctx context.Context, id, stepID string, value any, display string) (Session, error) {
	body := map[string]any{"step_id": stepID, "value": value}
	if display != "" {
		body["display"] = display
	}
	var resp Session
	err := c.do(ctx, http.MethodPost, sessionPath(id, "answers"), body, &resp)
	return resp, err
}

// SendMessage hands free text to the server-side parser.
func (c *Client) SendMessage(ctx context.Context, id, text string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, sessionPath(id, "messages"), map[string]any{"text": text}, &resp)
	return resp, err
}

func (c *Client) Revert(ctx context.Context, id, stepID string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, sessionPath(id, "revert"), map[string]any{"step_id": stepID}, &resp)
	return resp, err
}

// SetMode switches between "guided" and "free_text".
func (c *Client) SetMode(ctx context.Context, id, mode string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPut, sessionPath(id, "mode"), map[string]any{"mode": mode}, &resp)
	return resp, err
}

// SetField writes one value by dotted path.
func (c *Client) SetField(ctx context.Context, id, path string, value any) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPut, sessionPath(id, "fields"), map[string]any{"path": path, "value": value}, &resp)
	return resp, err
}

// Form fetches the form view into out.
func (c *Client) Form(ctx context.Context, id string, out any) error {
	return c.do(ctx, http.MethodGet, sessionPath(id, "form"), nil, out)
}

// SubmitForm writes a full form back to the record.
func (c *Client) SubmitForm(ctx context.Context, id string, form any) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPut, sessionPath(id, "form"), form, &resp)
	return resp, err
}

func (c *Client) Save(ctx context.Context, id string) (Estimate, error) {
	var resp Estimate
	err := c.do(ctx, http.MethodPost, sessionPath(id, "save"), nil, &resp)
	return resp, err
}

func (c *Client) Submit(ctx context.Context, id string) (Estimate, error) {
	var resp Estimate
	err := c.do(ctx, http.MethodPost, sessionPath(id, "submit"), nil, &resp)
	return resp, err
}

// Steps lists the guided flow catalog.
func (c *Client) Steps(ctx context.Context) ([]Step, error) {
	var resp []Step
	err := c.do(ctx, http.MethodGet, "steps", nil, &resp)
	return resp, err
}

// ListEstimates requires an operator token.
func (c *Client) ListEstimates(ctx context.Context, status string, limit int) ([]Estimate, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	endpoint := "estimates"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Estimate `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) GetEstimate(ctx context.Context, id string) (Estimate, error) {
	var resp Estimate
	err := c.do(ctx, http.MethodGet, "estimates/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// EventsPage fetches one page of an estimate's events after cursor.
func (c *Client) EventsPage(ctx context.Context, estimateID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "estimates/" + url.PathEscape(estimateID) + "/events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Resume opens a new session over a stored estimate.
func (c *Client) Resume(ctx context.Context, estimateID string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "estimates/"+url.PathEscape(estimateID)+"/resume", nil, &resp)
	return resp, err
}

// IssueToken mints a token; requires an operator token.
func (c *Client) IssueToken(ctx context.Context, subject string, roles []string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "auth/tokens", map[string]any{"subject": subject, "roles": roles}, &resp)
	return resp.Token, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func sessionPath(id, p string) string {
	if p == "" {
		return "sessions/" + url.PathEscape(id)
	}
	return fmt.Sprintf("sessions/%s/%s", url.PathEscape(id), p)
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if c.BasePath != "" {
		base += "/" + strings.Trim(c.BasePath, "/")
	}
	return base
}
