package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bakkerme/free-game-notifier/internal/core"
)

type fakeRunner struct {
	running  bool
	last     *core.CycleReport
	triggers []string
	err      error
}

func (f *fakeRunner) Trigger(ctx context.Context, reason string) error {
	_ = ctx
	if f.err != nil {
		return f.err
	}
	f.triggers = append(f.triggers, reason)
	return nil
}

func (f *fakeRunner) Running() bool                 { return f.running }
func (f *fakeRunner) LastReport() *core.CycleReport { return f.last }

func serve(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(t, NewServer("free-game-notifier", &fakeRunner{}, nil), http.MethodGet, "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" || body["service"] != "free-game-notifier" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestStatusReportsLastCycle(t *testing.T) {
	runner := &fakeRunner{last: &core.CycleReport{
		ID:     "cycle-1",
		Status: core.CycleStatusPartial,
		Stores: []*core.StoreReport{{Store: core.StoreSteam, Delivered: 2}},
	}}
	rec := serve(t, NewServer("n", runner, nil), http.MethodGet, "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var body statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Running || body.LastCycle == nil || body.LastCycle.ID != "cycle-1" || body.LastCycle.Delivered() != 2 {
		t.Fatalf("unexpected status %+v", body)
	}
}

func TestCheckTriggersCycle(t *testing.T) {
	runner := &fakeRunner{}
	s := NewServer("n", runner, nil)

	if rec := serve(t, s, http.MethodPost, "/api/v1/check"); rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d, want 202", rec.Code)
	}
	if len(runner.triggers) != 1 || runner.triggers[0] != "api" {
		t.Fatalf("triggers=%v", runner.triggers)
	}

	runner.err = core.ErrCycleInProgress
	if rec := serve(t, s, http.MethodPost, "/api/v1/check"); rec.Code != http.StatusConflict {
		t.Fatalf("status=%d, want 409", rec.Code)
	}
	if rec := serve(t, s, http.MethodGet, "/api/v1/check"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET check status=%d, want 405", rec.Code)
	}
}

func TestCheckDuringShutdownIsUnavailable(t *testing.T) {
	s := NewServer("n", &fakeRunner{err: core.ErrStopped}, nil)
	if rec := serve(t, s, http.MethodPost, "/api/v1/check"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rec.Code)
	}
}
