package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"connectrpc.com/grpcreflect"
	"connectrpc.com/otelconnect"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/otterscale/resource-adapter/internal/core"
	"github.com/otterscale/resource-adapter/internal/leader"
)

const (
	healthzPath = "/healthz"
	statuszPath = "/statusz"
	historyPath = "/history"

	defaultHistoryLimit = 50
)

type Handler struct {
	manager  *core.LifecycleManager
	registry *core.Registry
	repo     core.ResourceRepository
	elector  *leader.Elector
}

func NewHandler(manager *core.LifecycleManager, registry *core.Registry, repo core.ResourceRepository, elector *leader.Elector) *Handler {
	return &Handler{
		manager:  manager,
		registry: registry,
		repo:     repo,
		elector:  elector,
	}
}

// Mount registers all handlers, middlewares, and observability tools to the mux.
func (h *Handler) Mount(mux *http.ServeMux) error {
	otelInterceptor, err := otelconnect.NewInterceptor()
	if err != nil {
		return err
	}

	interceptors := connect.WithInterceptors(
		otelInterceptor,
	)

	reflector := grpcreflect.NewStaticReflector(grpchealth.HealthV1ServiceName)
	mux.Handle(grpcreflect.NewHandlerV1(reflector))
	mux.Handle(grpcreflect.NewHandlerV1Alpha(reflector))

	mux.Handle(grpchealth.NewHandler(newHealthChecker(h.manager, h.registry), interceptors))

	exporter, err := prometheus.New()
	if err != nil {
		return err
	}
	otel.SetMeterProvider(metric.NewMeterProvider(metric.WithReader(exporter)))
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc(healthzPath, h.healthz)
	mux.HandleFunc(statuszPath, h.statusz)
	mux.HandleFunc(historyPath, h.history)

	return nil
}

type healthzResponse struct {
	Status string `json:"status"`
	Leader *bool  `json:"leader,omitempty"`
	Failed int    `json:"failed"`
}

// healthz reports 503 once any kind has failed permanently. A standby
// replica without loops is healthy.
func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	resp := healthzResponse{Status: "ok"}
	for _, s := range h.manager.Statuses() {
		if s.State == core.LoopStateFailed {
			resp.Failed++
		}
	}
	if h.elector != nil {
		leading := h.elector.IsLeader()
		resp.Leader = &leading
	}

	code := http.StatusOK
	if resp.Failed > 0 {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

type kindStatus struct {
	Kind           string    `json:"kind"`
	Plugin         string    `json:"plugin"`
	State          string    `json:"state"`
	Cursor         string    `json:"cursor,omitempty"`
	LastError      string    `json:"lastError,omitempty"`
	LastTransition time.Time `json:"lastTransition"`
}

func (h *Handler) statusz(w http.ResponseWriter, _ *http.Request) {
	statuses := h.manager.Statuses()
	out := make([]kindStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, kindStatus{
			Kind:           s.Kind,
			Plugin:         s.Plugin,
			State:          string(s.State),
			Cursor:         s.Cursor.String(),
			LastError:      s.LastError,
			LastTransition: s.LastTransition,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type historyEntry struct {
	EventType       string    `json:"eventType"`
	ResourceVersion string    `json:"resourceVersion"`
	Outcome         string    `json:"outcome"`
	Reason          string    `json:"reason,omitempty"`
	RecordedAt      time.Time `json:"recordedAt"`
}

// history serves GET /history?kind=<kind key>&key=<namespace/name>&limit=N.
func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kindKey, key := q.Get("kind"), q.Get("key")
	if kindKey == "" || key == "" {
		http.Error(w, "kind and key are required", http.StatusBadRequest)
		return
	}

	reg, ok := h.registry.LookupKey(kindKey)
	if !ok {
		http.Error(w, "unknown kind "+kindKey, http.StatusNotFound)
		return
	}

	limit := defaultHistoryLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.repo.History(r.Context(), reg.Definition.Kind, key, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntry{
			EventType:       string(e.EventType),
			ResourceVersion: e.ResourceVersion.String(),
			Outcome:         e.Outcome,
			Reason:          e.Reason,
			RecordedAt:      e.RecordedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// healthChecker answers grpc.health.v1 checks. The empty service is
// the process as a whole; every registered kind is a service of its
// own that serves while its watch is streaming.
type healthChecker struct {
	manager  *core.LifecycleManager
	registry *core.Registry
}

func newHealthChecker(manager *core.LifecycleManager, registry *core.Registry) *healthChecker {
	return &healthChecker{manager: manager, registry: registry}
}

var _ grpchealth.Checker = (*healthChecker)(nil)

func (c *healthChecker) Check(_ context.Context, req *grpchealth.CheckRequest) (*grpchealth.CheckResponse, error) {
	if req.Service == "" || req.Service == grpchealth.HealthV1ServiceName {
		for _, s := range c.manager.Statuses() {
			if s.State == core.LoopStateFailed {
				return &grpchealth.CheckResponse{Status: grpchealth.StatusNotServing}, nil
			}
		}
		return &grpchealth.CheckResponse{Status: grpchealth.StatusServing}, nil
	}

	if _, ok := c.registry.LookupKey(req.Service); !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("unknown service %s", req.Service))
	}

	s, ok := c.manager.Status(req.Service)
	if ok && s.State == core.LoopStateStreaming {
		return &grpchealth.CheckResponse{Status: grpchealth.StatusServing}, nil
	}
	return &grpchealth.CheckResponse{Status: grpchealth.StatusNotServing}, nil
}
