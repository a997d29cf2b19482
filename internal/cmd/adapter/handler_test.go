package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"

	"github.com/otterscale/resource-adapter/internal/core"
)

func TestHealthz_OK(t *testing.T) {
	env := newTestEnv(t)
	env.start(t)
	env.waitState(t, widgetKind.Key(), core.LoopStateStreaming)

	h := NewHandler(env.manager, env.registry, env.repo, nil)
	rec := httptest.NewRecorder()
	h.healthz(rec, httptest.NewRequest(http.MethodGet, healthzPath, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body healthzResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Failed != 0 || body.Leader != nil {
		t.Errorf("body = %+v", body)
	}
}

func TestHealthz_DegradedWhenAKindFails(t *testing.T) {
	env := newTestEnv(t)
	env.schemas.failing["gadgets.example.com"] = &core.DomainError{Code: core.ErrorCodePermissionDenied, Message: "forbidden"}
	env.start(t)

	h := NewHandler(env.manager, env.registry, env.repo, nil)
	rec := httptest.NewRecorder()
	h.healthz(rec, httptest.NewRequest(http.MethodGet, healthzPath, nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body healthzResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" || body.Failed != 1 {
		t.Errorf("body = %+v", body)
	}
}

func TestStatusz(t *testing.T) {
	env := newTestEnv(t)
	env.source.events[widgetKind.Key()] = []core.WatchEvent{widgetEvent(core.WatchEventAdded, "a", "3")}
	env.start(t)
	waitCursor(t, env, "3")

	h := NewHandler(env.manager, env.registry, env.repo, nil)
	rec := httptest.NewRecorder()
	h.statusz(rec, httptest.NewRequest(http.MethodGet, statuszPath, nil))

	var body []kindStatus
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 2 {
		t.Fatalf("kinds = %d, want 2", len(body))
	}
	w := body[1]
	if w.Kind != widgetKind.Key() || w.Plugin != "stub" || w.State != string(core.LoopStateStreaming) || w.Cursor != "3" {
		t.Errorf("widget status = %+v", w)
	}
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	env.source.events[widgetKind.Key()] = []core.WatchEvent{
		widgetEvent(core.WatchEventAdded, "a", "1"),
		widgetEvent(core.WatchEventModified, "a", "2"),
	}
	env.start(t)
	waitCursor(t, env, "2")

	h := NewHandler(env.manager, env.registry, env.repo, nil)

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantLen  int
	}{
		{"all entries", "?kind=widgets.example.com/v1&key=default/a", http.StatusOK, 2},
		{"limited", "?kind=widgets.example.com/v1&key=default/a&limit=1", http.StatusOK, 1},
		{"unknown key", "?kind=widgets.example.com/v1&key=default/zzz", http.StatusOK, 0},
		{"missing key", "?kind=widgets.example.com/v1", http.StatusBadRequest, 0},
		{"bad limit", "?kind=widgets.example.com/v1&key=default/a&limit=-3", http.StatusBadRequest, 0},
		{"unknown kind", "?kind=things.example.com/v1&key=default/a", http.StatusNotFound, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.history(rec, httptest.NewRequest(http.MethodGet, historyPath+tt.query, nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var body []historyEntry
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(body) != tt.wantLen {
				t.Fatalf("entries = %d, want %d", len(body), tt.wantLen)
			}
			if tt.wantLen > 0 && (body[0].EventType != "MODIFIED" || body[0].ResourceVersion != "2" || body[0].Outcome != "accepted") {
				t.Errorf("newest entry = %+v", body[0])
			}
		})
	}
}

func TestHealthChecker(t *testing.T) {
	env := newTestEnv(t)
	env.schemas.failing["gadgets.example.com"] = errors.New("boom")
	env.start(t)
	env.waitState(t, widgetKind.Key(), core.LoopStateStreaming)

	c := newHealthChecker(env.manager, env.registry)
	ctx := context.Background()

	tests := []struct {
		name    string
		service string
		want    grpchealth.Status
	}{
		{"process", "", grpchealth.StatusNotServing},
		{"streaming kind", widgetKind.Key(), grpchealth.StatusServing},
		{"failed kind", "gadgets.example.com/v1", grpchealth.StatusNotServing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := c.Check(ctx, &grpchealth.CheckRequest{Service: tt.service})
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if resp.Status != tt.want {
				t.Errorf("status = %v, want %v", resp.Status, tt.want)
			}
		})
	}

	_, err := c.Check(ctx, &grpchealth.CheckRequest{Service: "nope"})
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("unknown service error = %v, want NotFound", err)
	}
}

func TestMount_ServesEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.start(t)

	mux := http.NewServeMux()
	if err := NewHandler(env.manager, env.registry, env.repo, nil).Mount(mux); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	for _, path := range []string{healthzPath, statuszPath, "/metrics"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func waitCursor(t *testing.T, env *testEnv, want core.Cursor) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s, ok := env.manager.Status(widgetKind.Key()); ok && s.Cursor == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("widget cursor never reached %s", want)
}
