// Package health implements the liveness and readiness probes served on the
// admin listener.
//
// GET /healthz reports liveness and succeeds whenever the process can serve
// HTTP. GET /readyz runs every registered probe (the database ping, for
// example) and answers 503 when any of them fails. Bodies are JSON:
//
//	{"status":"ok","checks":{"database":"ok"}}
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// defaultProbeTimeout bounds a single readiness probe.
const defaultProbeTimeout = 5 * time.Second

// Checker is one named readiness probe. Check returns nil when the dependency
// is usable and an error describing the problem otherwise; it must honor
// context cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler answers the probe endpoints. Probes run concurrently on each
// /readyz request; the checker set is fixed at construction.
type Handler struct {
	checkers []Checker
	timeout  time.Duration
}

// New creates a probe handler over the given checkers.
func New(checkers ...Checker) *Handler {
	return &Handler{
		checkers: append([]Checker(nil), checkers...),
		timeout:  defaultProbeTimeout,
	}
}

// WithTimeout overrides the per-probe timeout and returns the handler for
// chaining.
func (h *Handler) WithTimeout(d time.Duration) *Handler {
	h.timeout = d
	return h
}

// Register mounts the probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz is the liveness probe. Reaching it at all is the signal, so it
// always reports ok.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, "ok", nil)
}

// Readyz runs every checker concurrently, each under its own timeout, and
// reports 503 with the per-probe failures when any checker errs.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		failed bool
	)

	var wg sync.WaitGroup
	for _, c := range h.checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				failed = true
			} else {
				checks[c.Name] = "ok"
			}
		}(c)
	}
	wg.Wait()

	if failed {
		h.respond(w, http.StatusServiceUnavailable, "fail", checks)
		return
	}
	h.respond(w, http.StatusOK, "ok", checks)
}

func (h *Handler) respond(w http.ResponseWriter, code int, status string, checks map[string]string) {
	body := struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks,omitempty"`
	}{Status: status, Checks: checks}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
