package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wyfcoding/gridstore/engine"
	"github.com/wyfcoding/gridstore/storage"
)

type stubBackend struct {
	pingErr error
}

func (b *stubBackend) OpenWriteStream(context.Context, storage.WriteConfig) (storage.WriteStream, error) {
	return nil, errors.New("not implemented")
}

func (b *stubBackend) Delete(context.Context, any, string) error { return nil }
func (b *stubBackend) Ping(context.Context) error                { return b.pingErr }
func (b *stubBackend) Close(context.Context) error               { return nil }

func waitForOpen(e *engine.Engine) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.ConnState() == engine.StateOpen {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func TestEngineChecker(t *testing.T) {
	e, err := engine.New(engine.FromBackend(&stubBackend{}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if !waitForOpen(e) {
		t.Fatal("Connection never opened")
	}
	if err := EngineChecker(e)(); err != nil {
		t.Errorf("Open engine reported unhealthy: %v", err)
	}
	if err := EngineChecker(nil)(); err == nil {
		t.Error("Nil engine should be unhealthy")
	}
}

func TestBackendChecker(t *testing.T) {
	if err := BackendChecker(&stubBackend{}, time.Second)(); err != nil {
		t.Errorf("Healthy backend reported unhealthy: %v", err)
	}
	boom := errors.New("no reachable servers")
	if err := BackendChecker(&stubBackend{pingErr: boom}, time.Second)(); err == nil {
		t.Error("Failing ping should be unhealthy")
	}
}

func TestHandlerAggregates(t *testing.T) {
	h := Handler(map[string]Checker{
		"ok":   func() error { return nil },
		"down": func() error { return errors.New("backend offline") },
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", rec.Code)
	}

	h = Handler(map[string]Checker{"ok": func() error { return nil }})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", rec.Code)
	}
}
