package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPMiddleware(t *testing.T) {
	m := New()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/evaluation/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	wrapped := HTTPMiddleware(m, mux)

	for _, id := range []string{"a", "b", "c"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/evaluation/runs/"+id, nil)
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	}

	// Path parameters collapse onto the route pattern.
	got := m.HTTPRequests.WithLabels(http.MethodGet, "GET /v1/evaluation/runs/{id}", "404").Value()
	if got != 3 {
		t.Errorf("requests for route = %d, want 3", got)
	}
	if v := m.HTTPRequestsInFlight.WithLabels().Value(); v != 0 {
		t.Errorf("expected in-flight requests to be 0, got %f", v)
	}
}

func TestHTTPMiddleware_Unmatched(t *testing.T) {
	m := New()
	wrapped := HTTPMiddleware(m, http.NewServeMux())

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	wrapped.ServeHTTP(httptest.NewRecorder(), req)

	if got := m.HTTPRequests.WithLabels(http.MethodGet, "unmatched", "404").Value(); got != 1 {
		t.Errorf("unmatched requests = %d, want 1", got)
	}
}

func TestHTTPMiddleware_NilMetrics(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if HTTPMiddleware(nil, next) == nil {
		t.Error("expected the wrapped handler to be returned")
	}
}

func TestResponseWriter_WriteSetsStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	w.Write([]byte("body"))
	w.WriteHeader(http.StatusInternalServerError)

	if w.statusCode != http.StatusOK {
		t.Errorf("status = %d, want the first write's 200", w.statusCode)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordBusPublish("eval.sets.partial", time.Millisecond, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain; version=0.0.4") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "rice_eval_bus_published_total") {
		t.Error("body is missing published partials")
	}

	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}
}
