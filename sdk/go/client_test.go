package movelinesdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	body   map[string]any
}

func fakeAPI(t *testing.T, handler func(w http.ResponseWriter, r recorded)) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, auth: r.Header.Get("Authorization")}
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			_ = json.Unmarshal(data, &rec.body)
		}
		calls = append(calls, rec)
		w.Header().Set("Content-Type", "application/json")
		handler(w, rec)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestCreateSessionAdoptsToken(t *testing.T) {
	srv, calls := fakeAPI(t, func(w http.ResponseWriter, r recorded) {
		switch r.path {
		case "/v1/sessions":
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"s-1","mode":"guided","current_step":"move_date","token":"tok","messages":[{"id":"m1","role":"ai","content":"언제 이사하세요?"}]}`))
		default:
			w.Write([]byte(`{"id":"s-1","mode":"guided","current_step":"move_category","messages":[]}`))
		}
	})
	c := New(srv.URL)
	s, err := c.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.CurrentStep != "move_date" || c.BearerToken != "tok" {
		t.Fatalf("unexpected session %+v token %q", s, c.BearerToken)
	}
	if m, ok := s.LastReply(); !ok || m.ID != "m1" {
		t.Fatalf("expected last assistant message")
	}

	if _, err := c.Answer(context.Background(), s.ID, "move_date", "2025-06-01", "6월 1일"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	last := (*calls)[len(*calls)-1]
	if last.method != http.MethodPost || last.path != "/v1/sessions/s-1/answers" || last.auth != "Bearer tok" {
		t.Fatalf("unexpected request %+v", last)
	}
	if last.body["step_id"] != "move_date" || last.body["display"] != "6월 1일" {
		t.Fatalf("unexpected body %+v", last.body)
	}
}

func TestAPIErrorEnvelope(t *testing.T) {
	srv, _ := fakeAPI(t, func(w http.ResponseWriter, r recorded) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":{"code":"not_ready","message":"estimate is not ready for submission"}}`))
	})
	c := New(srv.URL)
	_, err := c.Submit(context.Background(), "s-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsCode(err, "not_ready") {
		t.Fatalf("expected not_ready, got %v", err)
	}
	apiErr := err.(*APIError)
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status %d", apiErr.StatusCode)
	}
}

func TestEstimateQueries(t *testing.T) {
	srv, calls := fakeAPI(t, func(w http.ResponseWriter, r recorded) {
		switch r.path {
		case "/v1/estimates":
			w.Write([]byte(`{"items":[{"id":"e-1","status":"submitted","completion_rate":1}]}`))
		case "/v1/estimates/e-1/events":
			w.Write([]byte(`{"items":[{"id":3,"type":"estimate.submitted"}],"next_cursor":"3"}`))
		case "/v1/sessions/s-1":
			w.WriteHeader(http.StatusNoContent)
		}
	})
	c := New(srv.URL)
	c.BearerToken = "op"
	items, err := c.ListEstimates(context.Background(), "submitted", 10)
	if err != nil || len(items) != 1 || items[0].ID != "e-1" {
		t.Fatalf("list: %v %+v", err, items)
	}
	if q := (*calls)[0].query; q != "limit=10&status=submitted" {
		t.Fatalf("unexpected query %q", q)
	}
	page, err := c.EventsPage(context.Background(), "e-1", 1, "2")
	if err != nil || page.NextCursor != "3" || page.Items[0].Type != "estimate.submitted" {
		t.Fatalf("events: %v %+v", err, page)
	}
	if q := (*calls)[1].query; q != "cursor=2&limit=1" {
		t.Fatalf("unexpected query %q", q)
	}
	if err := c.CloseSession(context.Background(), "s-1"); err != nil {
		t.Fatalf("close: %v", err)
	}
}
