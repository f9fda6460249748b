package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"streamgate/internal/catalog"
	"streamgate/internal/session"
)

type fakeModelsClient struct {
	catalog []byte
	err     error
	calls   int
}

func (f *fakeModelsClient) Stream(context.Context, string, []session.Message) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeModelsClient) Complete(context.Context, string, []session.Message) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeModelsClient) Models(context.Context) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.catalog, nil
}

func TestModelsPassthroughAndCache(t *testing.T) {
	cache := catalog.NewMemoryCache(time.Minute)
	t.Cleanup(func() { cache.Close() })

	fake := &fakeModelsClient{catalog: []byte(`{"data":[{"id":"gpt-4o"}]}`)}
	h := NewModelsHandler(fake, cache, time.Minute)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/models", nil)
		rr := httptest.NewRecorder()
		h.Models(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
		if rr.Body.String() != string(fake.catalog) {
			t.Fatalf("request %d: catalog not passed through: %q", i, rr.Body.String())
		}
	}

	if fake.calls != 1 {
		t.Fatalf("second request should be served from cache, upstream calls=%d", fake.calls)
	}
}

func TestModelsUpstreamFailure(t *testing.T) {
	cache := catalog.NewMemoryCache(time.Minute)
	t.Cleanup(func() { cache.Close() })

	fake := &fakeModelsClient{err: errors.New("upstream: models 500")}
	h := NewModelsHandler(fake, cache, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	rr := httptest.NewRecorder()
	h.Models(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if body := rr.Body.String(); !strings.Contains(body, `"error"`) {
		t.Fatalf("expected error body, got %q", body)
	}
}
