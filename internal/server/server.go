package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"moveline/internal/chat"
	"moveline/internal/domain"
	"moveline/internal/engine"
	"moveline/internal/formsync"
	"moveline/internal/schemapath"
	"moveline/internal/session"
	"moveline/internal/steps"
	"moveline/internal/store"
)

// Config for the HTTP API handler.
type Config struct {
	Sessions    *session.Manager
	Store       store.Estimates
	BasePath    string
	Auth        AuthConfig
	CORSOrigins []string
	Log         *zap.Logger
	Now         func() time.Time
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_answer"`
	Message string         `json:"message" example:"invalid answer for step move_date: unparseable date"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"step_id\":\"move_date\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type handler struct {
	sessions *session.Manager
	store    store.Estimates
	auth     AuthConfig
	log      *zap.Logger
	now      func() time.Time
}

// New returns an HTTP handler exposing the Moveline API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("session manager required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Log
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Moveline API", "0.3.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := &handler{sessions: cfg.Sessions, store: cfg.Store, auth: cfg.Auth, log: cfg.Log, now: cfg.Now}
	registerDocs(router, basePath)
	registerHealth(group)
	registerSteps(group)
	registerSessions(group, h)
	registerConversation(group, h)
	registerForm(group, h)
	registerPersistence(group, h)
	registerEstimates(group, h)
	registerTokens(group, h)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var unknown engine.UnknownStepError
	if errors.As(err, &unknown) {
		return newAPIError(http.StatusBadRequest, "unknown_step", err.Error(), map[string]any{"step_id": unknown.StepID})
	}
	var inactive engine.StepNotActiveError
	if errors.As(err, &inactive) {
		return newAPIError(http.StatusConflict, "step_not_active", err.Error(), map[string]any{"step_id": inactive.StepID})
	}
	var invalid steps.InvalidAnswerError
	if errors.As(err, &invalid) {
		return newAPIError(http.StatusBadRequest, "invalid_answer", err.Error(), map[string]any{"step_id": invalid.StepID, "reason": invalid.Reason})
	}
	var field formsync.FieldError
	if errors.As(err, &field) {
		return newAPIError(http.StatusBadRequest, "invalid_field", err.Error(), map[string]any{"field": field.Field})
	}
	switch {
	case errors.Is(err, session.ErrNotFound):
		return newAPIError(http.StatusNotFound, "session_not_found", err.Error(), nil)
	case store.IsNotFound(err):
		return newAPIError(http.StatusNotFound, "not_found", "estimate not found", nil)
	case errors.Is(err, engine.ErrNotReady):
		return newAPIError(http.StatusUnprocessableEntity, "not_ready", err.Error(), nil)
	case errors.Is(err, engine.ErrAlreadySubmitted):
		return newAPIError(http.StatusConflict, "already_submitted", err.Error(), nil)
	case errors.Is(err, chat.ErrUnknownMode),
		errors.Is(err, schemapath.ErrInvalidPath),
		errors.Is(err, schemapath.ErrInvalidValue):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, session.ErrNoStore):
		return newAPIError(http.StatusServiceUnavailable, "store_unavailable", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
	}
	oas.Security = security
	public := map[string]string{
		path.Join("/", basePath, "health"):   "",
		path.Join("/", basePath, "steps"):    http.MethodGet,
		path.Join("/", basePath, "sessions"): http.MethodPost,
	}
	for route, item := range oas.Paths {
		method, isPublic := public[route]
		for m, op := range map[string]*huma.Operation{
			http.MethodGet: item.Get, http.MethodPut: item.Put, http.MethodPost: item.Post, http.MethodDelete: item.Delete,
		} {
			if op == nil {
				continue
			}
			if isPublic && (method == "" || method == m) {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Moveline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerSteps(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-steps",
		Method:      http.MethodGet,
		Path:        "/steps",
		Summary:     "List the guided flow catalog",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []steps.Step `json:"body"`
	}, error) {
		return &struct {
			Body []steps.Step `json:"body"`
		}{Body: steps.All()}, nil
	})
}

type sessionPath struct {
	ID string `path:"id"`
}

type sessionOutput struct {
	Body SessionResponse `json:"body"`
}

func (h *handler) respond(s *session.Session) *sessionOutput {
	return &sessionOutput{Body: sessionResponse(s)}
}

// withToken attaches a customer token scoped to the session.
func (h *handler) withToken(out *sessionOutput) (*sessionOutput, error) {
	if !h.auth.enabled() {
		return out, nil
	}
	token, err := SignToken(h.auth.JWTSecret, out.Body.ID, []string{RoleCustomer}, h.auth.ttl(), h.now())
	if err != nil {
		return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
	}
	out.Body.Token = token
	return out, nil
}

func registerSessions(api huma.API, h *handler) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/sessions",
		Summary:       "Start a conversation",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, _ *struct{}) (*sessionOutput, error) {
		s, err := h.sessions.Create(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return h.withToken(h.respond(s))
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}",
		Summary:     "Get a conversation",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*sessionOutput, error) {
		if err := requireSession(ctx, input.ID); err != nil {
			return nil, err
		}
		s, err := h.sessions.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return h.respond(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "close-session",
		Method:        http.MethodDelete,
		Path:          "/sessions/{id}",
		Summary:       "Drop a conversation",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*struct{}, error) {
		if err := requireSession(ctx, input.ID); err != nil {
			return nil, err
		}
		if err := h.sessions.Close(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/reset",
		Summary:     "Clear the conversation and start over",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*sessionOutput, error) {
		if err := requireSession(ctx, input.ID); err != nil {
			return nil, err
		}
		s, err := h.sessions.Reset(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return h.respond(s), nil
	})
}

func registerConversation(api huma.API, h *handler) {
	huma.Register(api, huma.Operation{
		OperationID: "answer-step",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/answers",
		Summary:     "Answer a guided step",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body AnswerRequest `json:"body"`
	}) (*sessionOutput, error) {
		if err := requireSession(ctx, input.ID); err != nil {
			return nil, err
		}
		s, err := h.sessions.Do(ctx, input.ID, func(s *session.Session) error {
			return s.Chat().HandleGuidedAnswer(input.Body.StepID, input.Body.Value, input.Body.Display)
		})
		if err != nil {
			return nil, handleError(err)
		}
		return h.respond(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-message",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/messages",
		Summary:     "Send free text to the parser",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body MessageRequest `json:"body"`
	}) (*sessionOutput, error) {
		if err := requireSession(ctx, input.ID); err != nil {
			return nil, err
		}
		if strings.TrimSpace(input.Body.Text) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "text required", nil)
		}
		s, err := h.sessions.Do(ctx, input.ID, func(s *session.Session) error {
			return s.Chat().HandleFreeTextInput(ctx, input.Body.Text)
		})
		if err != nil {
			return nil, handleError(err)
		}
		return h.respond(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revert-step",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/revert",
		Summary:     "Reopen a step and everything after it",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body RevertRequest `json:"body"`
	}) (*sessionOutput, error) {
		if err := requireSession(ctx, input.ID); err != nil {
			return nil, err
		}
		s, err := h.sessions.Do(ctx, input.ID, func(s *session.Session) error {
			return s.Chat().RevertToStep(input.Body.StepID)
		})
		if err != nil {
			return nil, handleError(err)
		}
		return h.respond(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-mode",
		Method:      http.MethodPut,
		Path:        "/sessions/{id}/mode",
		Summary:     "Switch between guided and free text input",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body ModeRequest `json:"body"`
	}) (*sessionOutput, error) {
		if err := requireSession(ctx, input.ID); err != nil {
			return nil, err
		}
		s, err := h.sessions.Do(ctx, input.ID, func(s *session.Session) error {
			return s.Chat().SetInputMode(chat.InputMode(input.Body.Mode))
		})
		if err != nil {
			return nil, handleError(err)
		}
		return h.respond(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-field",
		Method:      http.MethodPut,
		Path:        "/sessions/{id}/fields",
		Summary:     "Write one value by dotted path",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string       `path:"id"`
		Body FieldRequest `json:"body"`
	}) (*sessionOutput, error) {
		if err := requireSession(ctx, input.ID); err != nil {
			return nil, err
		}
		s, err := h.sessions.Do(ctx, input.ID, func(s *session.Session) error {
			return s.Chat().SetFieldValue(input.Body.Path, input.Body.Value, domain.ConfidenceForm)
		})
		if err != nil {
			return nil, handleError(err)
		}
		return h.respond(s), nil
	})
}

func registerForm(api huma.API, h *handler) {
	huma.Register(api, huma.Operation{
		OperationID: "get-form",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}/form",
		Summary:     "Get the form view of the record",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body formsync.Form `json:"body"`
	}, error) {
		if err := requireSession(ctx, input.ID); err != nil {
			return nil, err
		}
		s, err := h.sessions.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body formsync.Form `json:"body"`
		}{Body: s.Form()}, nil
	})

	// The form is decoded by hand: partially filled forms leave most fields
	// empty and would fail schema validation.
	huma.Register(api, huma.Operation{
		OperationID: "submit-form",
		Method:      http.MethodPut,
		Path:        "/sessions/{id}/form",
		Summary:     "Write a form edit back to the record",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*sessionOutput, error) {
		if err := requireSession(ctx, input.ID); err != nil {
			return nil, err
		}
		raw := bytes.TrimSpace(bodyBytes(ctx))
		if len(raw) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		var form formsync.Form
		if err := json.Unmarshal(raw, &form); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid form", map[string]any{"error": err.Error()})
		}
		s, err := h.sessions.SubmitForm(ctx, input.ID, form)
		if err != nil {
			return nil, handleError(err)
		}
		return h.respond(s), nil
	})
}

func registerPersistence(api huma.API, h *handler) {
	huma.Register(api, huma.Operation{
		OperationID: "save-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/save",
		Summary:     "Persist the record as an estimate",
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body domain.Estimate `json:"body"`
	}, error) {
		if err := requireSession(ctx, input.ID); err != nil {
			return nil, err
		}
		est, err := h.sessions.Save(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Estimate `json:"body"`
		}{Body: est}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/submit",
		Summary:     "Submit the estimate",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body domain.Estimate `json:"body"`
	}, error) {
		if err := requireSession(ctx, input.ID); err != nil {
			return nil, err
		}
		est, err := h.sessions.Submit(ctx, input.ID)
		if errors.Is(err, engine.ErrNotReady) {
			details := map[string]any{}
			if s, gerr := h.sessions.Get(ctx, input.ID); gerr == nil {
				details["missing_required"] = nonNilSlice(s.Chat().Status().Missing)
			}
			return nil, newAPIError(http.StatusUnprocessableEntity, "not_ready", err.Error(), details)
		}
		if err != nil {
			return nil, handleError(err)
		}
		h.log.Info("estimate submitted", zap.String("session_id", input.ID), zap.String("estimate_id", est.ID))
		return &struct {
			Body domain.Estimate `json:"body"`
		}{Body: est}, nil
	})
}

func (h *handler) requireStore() huma.StatusError {
	if h.store == nil {
		return handleError(session.ErrNoStore)
	}
	return nil
}

func registerEstimates(api huma.API, h *handler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-estimates",
		Method:      http.MethodGet,
		Path:        "/estimates",
		Summary:     "List stored estimates",
		Errors:      []int{http.StatusForbidden, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" doc:"draft or submitted"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body paginatedEstimates `json:"body"`
	}, error) {
		if err := requireOperator(ctx); err != nil {
			return nil, err
		}
		if err := h.requireStore(); err != nil {
			return nil, err
		}
		if input.Status != "" && input.Status != domain.EstimateDraft && input.Status != domain.EstimateSubmitted {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid status", map[string]any{"status": input.Status})
		}
		items, err := h.store.List(ctx, domain.EstimateFilter{Status: input.Status, Limit: normalizeLimit(input.Limit)})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body paginatedEstimates `json:"body"`
		}{Body: paginatedEstimates{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-estimate",
		Method:      http.MethodGet,
		Path:        "/estimates/{id}",
		Summary:     "Get a stored estimate",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body domain.Estimate `json:"body"`
	}, error) {
		if err := requireOperator(ctx); err != nil {
			return nil, err
		}
		if err := h.requireStore(); err != nil {
			return nil, err
		}
		est, err := h.store.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Estimate `json:"body"`
		}{Body: est}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-estimate-events",
		Method:      http.MethodGet,
		Path:        "/estimates/{id}/events",
		Summary:     "List an estimate's events",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if err := requireOperator(ctx); err != nil {
			return nil, err
		}
		if err := h.requireStore(); err != nil {
			return nil, err
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := h.store.Events(ctx, input.ID, cursorID, limit+1)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "resume-estimate",
		Method:        http.MethodPost,
		Path:          "/estimates/{id}/resume",
		Summary:       "Open a conversation over a stored estimate",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*sessionOutput, error) {
		if err := requireOperator(ctx); err != nil {
			return nil, err
		}
		s, err := h.sessions.Resume(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return h.withToken(h.respond(s))
	})
}

func registerTokens(api huma.API, h *handler) {
	huma.Register(api, huma.Operation{
		OperationID: "issue-token",
		Method:      http.MethodPost,
		Path:        "/auth/tokens",
		Summary:     "Mint a bearer token",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body TokenRequest `json:"body"`
	}) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		if err := requireOperator(ctx); err != nil {
			return nil, err
		}
		if !h.auth.enabled() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "authentication is disabled", nil)
		}
		for _, r := range input.Body.Roles {
			if r != RoleCustomer && r != RoleOperator {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown role", map[string]any{"role": r})
			}
		}
		token, err := SignToken(h.auth.JWTSecret, strings.TrimSpace(input.Body.Subject), input.Body.Roles, h.auth.ttl(), h.now())
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return &struct {
			Body TokenResponse `json:"body"`
		}{Body: TokenResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
