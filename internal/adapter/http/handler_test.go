package http_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/neomorfeo/casebook/internal/adapter/fsm"
	adapter "github.com/neomorfeo/casebook/internal/adapter/http"
	"github.com/neomorfeo/casebook/internal/adapter/sqlite"
	"github.com/neomorfeo/casebook/internal/app"
	"github.com/neomorfeo/casebook/internal/domain"
)

// recordingPublisher keeps published envelopes for inspection.
type recordingPublisher struct {
	mu        sync.Mutex
	envelopes []domain.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, env domain.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envelopes = append(p.envelopes, env)
	return nil
}

type testServer struct {
	*httptest.Server
	publisher *recordingPublisher
}

// newTestServer creates a full-stack httptest.Server over a temp SQLite file.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := sqlite.Open(t.TempDir() + "/http_test.db")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := app.NewCaseService(sqlite.NewRecordRepository(db), sqlite.NewLedger(db), nil)
	pub := &recordingPublisher{}

	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("casebook", "0.1.0"))
	adapter.Register(api, svc, pub, fsm.NewRenderer())

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, publisher: pub}
}

// doRequest performs an HTTP request with context (avoids noctx linter).
func doRequest(t *testing.T, method, url, body string, headers ...string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, reader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}

	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, want, body)
	}
}

const offenseBody = `{"plate_number":"ABC-123","driver_name":"Lee","offense_code":"SPD-20","fine_cents":20000,"points":3}`

// mustCreateOffense creates an offense via the API and returns its response.
func mustCreateOffense(t *testing.T, srv *testServer, headers ...string) adapter.RecordResponse {
	t.Helper()

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/records/offense", offenseBody, headers...)
	expectStatus(t, resp, http.StatusCreated)
	return decodeBody[adapter.RecordResponse](t, resp)
}

// --- Create ---

func TestCreate(t *testing.T) {
	srv := newTestServer(t)
	rec := mustCreateOffense(t, srv)

	if rec.ID == "" {
		t.Error("ID should not be empty")
	}
	if rec.Domain != "offense" {
		t.Errorf("Domain = %q, want %q", rec.Domain, "offense")
	}
	if rec.Status != "UNPROCESSED" {
		t.Errorf("Status = %q, want %q", rec.Status, "UNPROCESSED")
	}
	if got := strings.Join(rec.AvailableEvents, ","); got != "CANCEL,START_PROCESSING" {
		t.Errorf("AvailableEvents = %s, want CANCEL,START_PROCESSING", got)
	}
	if !strings.Contains(string(rec.Data), `"plate_number":"ABC-123"`) {
		t.Errorf("Data missing payload: %s", rec.Data)
	}
	if rec.CreatedAt == "" {
		t.Error("CreatedAt should not be empty")
	}
}

func TestCreate_IdempotencyKeyReplays(t *testing.T) {
	srv := newTestServer(t)

	first := mustCreateOffense(t, srv, "Idempotency-Key", "req-1")
	second := mustCreateOffense(t, srv, "Idempotency-Key", "req-1")
	if first.ID != second.ID {
		t.Errorf("replayed ID = %q, want %q", second.ID, first.ID)
	}

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/records/offense", "")
	expectStatus(t, resp, http.StatusOK)
	if recs := decodeBody[[]adapter.RecordResponse](t, resp); len(recs) != 1 {
		t.Errorf("got %d records, want 1", len(recs))
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/idempotency/req-1", "")
	expectStatus(t, resp, http.StatusOK)
	h := decodeBody[adapter.HistoryResponse](t, resp)
	if h.Status != "SUCCESS" || h.BusinessID != first.ID {
		t.Errorf("history = %+v, want SUCCESS for %s", h, first.ID)
	}
	if h.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}
}

func TestCreate_Errors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"validation", "/api/v1/records/offense", `{"offense_code":"SPD-20"}`, http.StatusUnprocessableEntity},
		{"non-initial status", "/api/v1/records/payment", `{"offense_id":"o-1","amount_cents":100,"status":"PAID"}`, http.StatusUnprocessableEntity},
		{"malformed", "/api/v1/records/offense", `{"points":"many"}`, http.StatusBadRequest},
		{"unknown domain", "/api/v1/records/parking", `{}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodPost, srv.URL+tt.path, tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

// --- Get / List ---

func TestGet(t *testing.T) {
	srv := newTestServer(t)
	created := mustCreateOffense(t, srv)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/records/offense/"+created.ID, "")
	expectStatus(t, resp, http.StatusOK)
	if got := decodeBody[adapter.RecordResponse](t, resp); got.ID != created.ID {
		t.Errorf("ID = %q, want %q", got.ID, created.ID)
	}

	// Records are scoped by domain.
	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/records/payment/"+created.ID, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cross-domain get status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestList_StatusFilter(t *testing.T) {
	srv := newTestServer(t)
	a := mustCreateOffense(t, srv)
	mustCreateOffense(t, srv)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/records/offense/"+a.ID+"/events", `{"event":"START_PROCESSING"}`)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/records/offense?status=PROCESSING", "")
	expectStatus(t, resp, http.StatusOK)
	recs := decodeBody[[]adapter.RecordResponse](t, resp)
	if len(recs) != 1 || recs[0].ID != a.ID {
		t.Errorf("filtered list = %+v, want only %s", recs, a.ID)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/records/offense?status=PAID", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("foreign status filter = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
}

// --- Transition / Update ---

func TestTransition(t *testing.T) {
	srv := newTestServer(t)
	created := mustCreateOffense(t, srv)
	url := srv.URL + "/api/v1/records/offense/" + created.ID + "/events"

	steps := []struct {
		event      string
		wantCode   int
		wantStatus string
	}{
		{"START_PROCESSING", http.StatusOK, "PROCESSING"},
		{"COMPLETE_PROCESSING", http.StatusOK, "PROCESSED"},
		{"APPROVE_APPEAL", http.StatusUnprocessableEntity, ""},
		{"WAIVE", http.StatusUnprocessableEntity, ""},
		{"SUBMIT_APPEAL", http.StatusOK, "APPEALING"},
	}

	for _, s := range steps {
		resp := doRequest(t, http.MethodPost, url, `{"event":"`+s.event+`"}`)
		if resp.StatusCode != s.wantCode {
			resp.Body.Close()
			t.Fatalf("%s: status = %d, want %d", s.event, resp.StatusCode, s.wantCode)
		}
		if s.wantCode != http.StatusOK {
			resp.Body.Close()
			continue
		}
		if got := decodeBody[adapter.RecordResponse](t, resp); got.Status != s.wantStatus {
			t.Errorf("%s: Status = %q, want %q", s.event, got.Status, s.wantStatus)
		}
	}
}

func TestTransition_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/records/offense/missing/events", `{"event":"CANCEL"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestUpdate(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/records/payment",
		`{"offense_id":"o-1","payer_name":"Lee","amount_cents":20000}`)
	expectStatus(t, resp, http.StatusCreated)
	created := decodeBody[adapter.RecordResponse](t, resp)
	url := srv.URL + "/api/v1/records/payment/" + created.ID

	// Event-driven update.
	resp = doRequest(t, http.MethodPut, url,
		`{"offense_id":"o-1","payer_name":"Lee","amount_cents":20000,"paid_cents":5000,"event":"PARTIAL_PAY"}`)
	expectStatus(t, resp, http.StatusOK)
	if got := decodeBody[adapter.RecordResponse](t, resp); got.Status != "PARTIAL" {
		t.Errorf("Status = %q, want PARTIAL", got.Status)
	}

	// Status-driven update one step away.
	resp = doRequest(t, http.MethodPut, url,
		`{"offense_id":"o-1","payer_name":"Lee","amount_cents":20000,"paid_cents":20000,"status":"PAID"}`)
	expectStatus(t, resp, http.StatusOK)
	if got := decodeBody[adapter.RecordResponse](t, resp); got.Status != "PAID" {
		t.Errorf("Status = %q, want PAID", got.Status)
	}

	// PAID cannot go back to PARTIAL.
	resp = doRequest(t, http.MethodPut, url,
		`{"offense_id":"o-1","payer_name":"Lee","amount_cents":20000,"paid_cents":100,"status":"PARTIAL"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("backwards update status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
}

// --- Machines ---

func TestMachine(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/machines/deduction", "")
	expectStatus(t, resp, http.StatusOK)
	m := decodeBody[adapter.MachineResponse](t, resp)

	if m.Initial != "EFFECTIVE" {
		t.Errorf("Initial = %q, want EFFECTIVE", m.Initial)
	}
	if len(m.States) != 3 || len(m.Transitions) != 4 {
		t.Errorf("got %d states and %d transitions, want 3 and 4", len(m.States), len(m.Transitions))
	}
	wantAvailable := map[string]string{
		"EFFECTIVE": "CANCEL,RESTORE",
		"CANCELLED": "REACTIVATE",
		"RESTORED":  "REACTIVATE",
	}
	for state, want := range wantAvailable {
		if got := strings.Join(m.Available[state], ","); got != want {
			t.Errorf("available from %s = %q, want %q", state, got, want)
		}
	}
	if m.Format != "mermaid" || !strings.Contains(m.Diagram, "stateDiagram") {
		t.Errorf("unexpected diagram (%s):\n%s", m.Format, m.Diagram)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/machines/deduction?format=graphviz", "")
	expectStatus(t, resp, http.StatusOK)
	if m := decodeBody[adapter.MachineResponse](t, resp); !strings.Contains(m.Diagram, "digraph") {
		t.Errorf("graphviz diagram missing digraph:\n%s", m.Diagram)
	}
}

// --- Idempotency ---

func TestIdempotency_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/idempotency/never-seen", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

// --- Events ---

func TestPublishEvent(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/events/appeal/create",
		`{"offense_id":"o-1","appellant_name":"Lee","reason":"wrong plate"}`,
		"Idempotency-Key", "evt-1")
	expectStatus(t, resp, http.StatusAccepted)

	out := decodeBody[struct {
		Topic          string `json:"topic"`
		IdempotencyKey string `json:"idempotency_key"`
	}](t, resp)
	if out.Topic != "appeal_create" {
		t.Errorf("Topic = %q, want appeal_create", out.Topic)
	}

	srv.publisher.mu.Lock()
	defer srv.publisher.mu.Unlock()
	if len(srv.publisher.envelopes) != 1 {
		t.Fatalf("published %d envelopes, want 1", len(srv.publisher.envelopes))
	}
	env := srv.publisher.envelopes[0]
	if env.IdempotencyKey != "evt-1" || env.Domain != domain.DomainAppeal || env.Action != domain.ActionCreate {
		t.Errorf("envelope = %+v", env)
	}
	if !strings.Contains(string(env.Payload), "wrong plate") {
		t.Errorf("payload not forwarded: %s", env.Payload)
	}
}

func TestPublishEvent_UnknownAction(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/events/appeal/delete", `{}`, "Idempotency-Key", "evt-2")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
}
