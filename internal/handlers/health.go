package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/SrAngelDev/CamisApi-sub000/internal/platform/httpx"
)

// ReadinessPinger reports whether the persistence backend is reachable.
type ReadinessPinger interface {
	Ping(ctx context.Context) error
}

// BuildInfo describes the running binary for the health payload.
type BuildInfo struct {
	Version   string `json:"version,omitempty"`
	Revision  string `json:"revision,omitempty"`
	StartedAt string `json:"startedAt,omitempty"`
}

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	build  BuildInfo
	pinger ReadinessPinger
	clock  func() time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo attaches build metadata to the health payload.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthPinger wires the readiness dependency.
func WithHealthPinger(pinger ReadinessPinger) HealthOption {
	return func(h *HealthHandlers) {
		h.pinger = pinger
	}
}

// NewHealthHandlers constructs the probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":    "ok",
		"timestamp": h.clock().UTC().Format(time.RFC3339),
	}
	if h.build != (BuildInfo{}) {
		payload["build"] = h.build
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz reports whether dependencies are reachable.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pinger != nil {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := h.pinger.Ping(checkCtx); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("not_ready", "persistence backend unreachable", http.StatusServiceUnavailable))
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ready"})
}
