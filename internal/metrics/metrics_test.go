package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

func TestMiddlewareLabelsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(GatewayLatencySeconds)
	defer GatewayLatencySeconds.Reset()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	// Distinct session ids must collapse into one labeled series.
	for _, id := range []string{"aaaa-1111", "bbbb-2222"} {
		resp, err := http.Get(srv.URL + "/stream/" + id)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var paths []string
	for _, mf := range families {
		if mf.GetName() != "gateway_latency_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "path" {
					paths = append(paths, lp.GetValue())
				}
			}
		}
	}

	if len(paths) != 1 {
		t.Fatalf("expected one path series, got %v", paths)
	}
	if paths[0] != "/stream/{sessionID}" {
		t.Fatalf("expected route pattern label, got %q", paths[0])
	}
}

func TestMiddlewareFallsBackToRawPath(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(GatewayLatencySeconds)
	defer GatewayLatencySeconds.Reset()

	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	found := false
	for _, mf := range families {
		if mf.GetName() != "gateway_latency_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "path" && lp.GetValue() == "/healthz" {
					found = true
				}
			}
		}
	}
	if !found {
		t.Fatal("expected raw path label outside a chi route")
	}
}
