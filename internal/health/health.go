// Package health serves the liveness and readiness probes of the interview
// engine.
//
//   - /healthz — liveness; a process that can answer HTTP is alive.
//   - /readyz  — readiness; 200 only while every dependency check passes
//     (the agent session has not failed, the transcript database answers).
//
// Readiness responses carry one entry per check with its outcome and how
// long the probe took, so a stuck database ping shows up directly in the
// probe output.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// DefaultCheckTimeout bounds a single readiness check.
const DefaultCheckTimeout = 5 * time.Second

// Checker is a named dependency probe. Check returns nil while the
// dependency is healthy and must respect context cancellation.
type Checker struct {
	// Name labels the check in the JSON response (e.g. "session",
	// "database").
	Name string

	Check func(ctx context.Context) error
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	// Status is "ok" or "fail".
	Status string `json:"status"`

	// Error carries the failure message for failed checks.
	Error string `json:"error,omitempty"`

	// Duration is how long the probe took, formatted as a Go duration.
	Duration string `json:"duration"`
}

// report is the JSON body of both probe endpoints.
type report struct {
	Service string                 `json:"service"`
	Status  string                 `json:"status"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// Option is a functional option for configuring a Handler.
type Option func(*Handler)

// WithCheckTimeout overrides the per-check deadline.
func WithCheckTimeout(d time.Duration) Option {
	return func(h *Handler) { h.timeout = d }
}

// Handler serves the /healthz and /readyz endpoints. Safe for concurrent
// use; the checker list is fixed at construction.
type Handler struct {
	checkers []Checker
	timeout  time.Duration
}

// New creates a Handler that evaluates checkers sequentially, in order, on
// every /readyz request.
func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{
		checkers: append([]Checker(nil), checkers...),
		timeout:  DefaultCheckTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz is the liveness probe. It always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Service: "voxhire", Status: "ok"})
}

// Readyz is the readiness probe. It answers 200 only when every check
// passes; any failure turns the overall status to "fail" and the code to
// 503, with the failing checks named in the body.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]CheckResult, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		start := time.Now()
		err := c.Check(ctx)
		elapsed := time.Since(start)
		cancel()

		res := CheckResult{Status: "ok", Duration: elapsed.Round(time.Microsecond).String()}
		if err != nil {
			res.Status = "fail"
			res.Error = err.Error()
			allOK = false
		}
		checks[c.Name] = res
	}

	rep := report{Service: "voxhire", Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		rep.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v with the given status code. On encoding failure it
// falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
