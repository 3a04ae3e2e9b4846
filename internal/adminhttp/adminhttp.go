// Package adminhttp serves the engine's operational surface: a liveness
// probe, a Prometheus scrape endpoint, a minimal JSON status listing of
// active runs, and the narrow job-control surface (queue/abort) the
// laminar CLI drives remotely. It deliberately does not serve the
// dashboard, artifact browser, or log-streaming transport — those are
// out of scope per spec.md §1. Routing follows the teacher's
// go-chi/chi Route/Get usage.
package adminhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/laminarci/laminar/internal/model"
	"github.com/laminarci/laminar/internal/registry"
	"github.com/laminarci/laminar/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Scheduler is the subset of *scheduler.Scheduler the job-control routes
// drive, matching the narrow-boundary style the store interface uses.
type Scheduler interface {
	QueueJob(ctx context.Context, name string, params map[string]string) (*model.Run, error)
	Abort(name string, build int) error
}

// runSummary is the JSON shape of one entry in GET /api/v1/runs.
type runSummary struct {
	Name      string    `json:"name"`
	Build     int       `json:"build"`
	State     string    `json:"state"`
	Node      string    `json:"node"`
	StartedAt time.Time `json:"started_at"`
	Reason    string    `json:"reason,omitempty"`
}

// NewRouter builds the admin HTTP surface: /healthz, /metrics,
// /api/v1/runs (a read-only snapshot of the active-run registry), and
// the job-control routes (/api/v1/jobs/{name}/queue,
// /api/v1/runs/{name}/{build}/abort) sched is non-nil for. Passing a
// nil sched serves the read-only routes only, which the tests for the
// registry-only endpoints rely on.
func NewRouter(reg *registry.Registry, metricsRegistry *prometheus.Registry, sched Scheduler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handleHealthz)
	r.Handle("/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/runs", handleListRuns(reg))
		if sched != nil {
			r.Post("/jobs/{name}/queue", handleQueueJob(sched))
			r.Post("/runs/{name}/{build}/abort", handleAbortRun(sched))
		}
	})

	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleListRuns(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs := reg.ByStartedAt()
		summaries := make([]runSummary, 0, len(runs))
		for _, run := range runs {
			summaries = append(summaries, runSummary{
				Name:      run.Name,
				Build:     run.Build,
				State:     stateLabel(run),
				Node:      run.Node,
				StartedAt: run.StartedAt,
				Reason:    run.Reason(),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(summaries); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// queueRequest is the optional JSON body of POST /jobs/{name}/queue.
type queueRequest struct {
	Params map[string]string `json:"params,omitempty"`
}

type queueResponse struct {
	Build int `json:"build"`
}

func handleQueueJob(sched Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		var req queueRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		run, err := sched.QueueJob(r.Context(), name, req.Params)
		if err != nil {
			if errors.Is(err, scheduler.ErrUnknownJob) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(queueResponse{Build: run.Build})
	}
}

func handleAbortRun(sched Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		build, err := strconv.Atoi(chi.URLParam(r, "build"))
		if err != nil {
			http.Error(w, "invalid build number", http.StatusBadRequest)
			return
		}

		if err := sched.Abort(name, build); err != nil {
			if errors.Is(err, scheduler.ErrRunNotFound) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusAccepted)
	}
}

// stateLabel reports a run's current lifecycle state; an active Run's
// State field is still Running until completion, so the wire label
// reflects that rather than the (not yet final) cumulative Result.
func stateLabel(run *model.Run) string {
	if run.Complete() {
		return run.State.String()
	}
	return model.Running.String()
}
