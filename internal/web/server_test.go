package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/kousei/internal/correct"
	"github.com/MrWong99/kousei/internal/observe"
	"github.com/MrWong99/kousei/internal/run"
)

func testServer(t *testing.T, checks ...Check) *Server {
	t.Helper()
	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	corrector, err := correct.New()
	if err != nil {
		t.Fatalf("correct.New: %v", err)
	}
	runner := run.New(corrector, run.WithMetrics(metrics))
	return NewServer(runner, metrics, checks...)
}

func decodeCorrect(t *testing.T, rec *httptest.ResponseRecorder) correctResponse {
	t.Helper()
	var resp correctResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestHandleCorrect_JSON(t *testing.T) {
	t.Parallel()

	handler := testServer(t).Handler()
	body := `{"text": "[0:00:01 - 0:00:05]\n申しすございす\n"}`
	req := httptest.NewRequest(http.MethodPost, "/correct", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200; body=%s", rec.Code, rec.Body)
	}
	resp := decodeCorrect(t, rec)
	if len(resp.Segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(resp.Segments))
	}
	if resp.Segments[0].Corrected != "申します。ございます。" {
		t.Errorf("corrected=%q", resp.Segments[0].Corrected)
	}
	if resp.Stats == nil || resp.Stats.TotalSegments != 1 {
		t.Errorf("stats=%+v", resp.Stats)
	}
}

func TestHandleCorrect_Form(t *testing.T) {
	t.Parallel()

	handler := testServer(t).Handler()
	form := url.Values{"text": {"[0:00:01 - 0:00:05]\nこんにちは\n"}}
	req := httptest.NewRequest(http.MethodPost, "/correct", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200; body=%s", rec.Code, rec.Body)
	}
	if resp := decodeCorrect(t, rec); len(resp.Segments) != 1 {
		t.Errorf("got %d segments, want 1", len(resp.Segments))
	}
}

func TestHandleCorrect_RawBody(t *testing.T) {
	t.Parallel()

	handler := testServer(t).Handler()
	req := httptest.NewRequest(http.MethodPost, "/correct",
		strings.NewReader("[0:00:01 - 0:00:05]\nこんにちは\n"))
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200; body=%s", rec.Code, rec.Body)
	}
}

func TestHandleCorrect_EmptyText(t *testing.T) {
	t.Parallel()

	handler := testServer(t).Handler()
	req := httptest.NewRequest(http.MethodPost, "/correct", strings.NewReader(`{"text": "  "}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
}

func TestHandleCorrect_InvalidJSON(t *testing.T) {
	t.Parallel()

	handler := testServer(t).Handler()
	req := httptest.NewRequest(http.MethodPost, "/correct", strings.NewReader(`{`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	handler := testServer(t).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body=%s", rec.Body)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checks     []Check
		wantStatus int
		wantBody   string
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantBody:   `"status":"ok"`,
		},
		{
			name: "passing check",
			checks: []Check{
				{Name: "statstore", Probe: func(context.Context) error { return nil }},
			},
			wantStatus: http.StatusOK,
			wantBody:   `"statstore":"ok"`,
		},
		{
			name: "failing check",
			checks: []Check{
				{Name: "statstore", Probe: func(context.Context) error { return errors.New("no connection") }},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "fail: no connection",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			handler := testServer(t, tt.checks...).Handler()
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status=%d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body=%s, want it to contain %q", rec.Body, tt.wantBody)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	handler := testServer(t).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
}
