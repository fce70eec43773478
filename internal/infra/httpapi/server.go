// Package httpapi exposes swipe intake and match queries over HTTP, next to the Prometheus
// scrape endpoint.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"mentor_match/internal/app"
	"mentor_match/internal/domain/matching"
)

const maxSwipeBody = 4 * 1024

// Swipes is the swipe intake the API serves. *app.SwipeService satisfies it.
type Swipes interface {
	Record(ctx context.Context, dir matching.Direction, participantID, counterpartID, cycleID string) (*matching.Swipe, error)
	Candidates(ctx context.Context, participantID string, limit int) ([]*matching.Participant, error)
	Remaining(ctx context.Context, participantID string) (int, error)
}

// Queries is the read side the API serves. *app.QueryService satisfies it.
type Queries interface {
	MatchStatus(ctx context.Context, participantID string) (*app.MatchStatus, error)
	CycleStatus(ctx context.Context, cycleID string) (*app.CycleStatus, error)
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	swipes   Swipes
	queries  Queries
	logger   *logrus.Entry
	validate *validator.Validate
	pageSize int
}

func NewHandlers(swipes Swipes, queries Queries, logger *logrus.Entry, pageSize int) *Handlers {
	return &Handlers{
		swipes:   swipes,
		queries:  queries,
		logger:   logger,
		validate: validator.New(),
		pageSize: pageSize,
	}
}

// Router builds the chi router with the API, health and metrics routes.
func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/cycles/{cycleID}", h.getCycle)
	r.Route("/participants/{participantID}", func(r chi.Router) {
		r.Get("/match", h.getMatch)
		r.Get("/candidates", h.listCandidates)
		r.Get("/remaining", h.getRemaining)
		r.Post("/swipes", h.postSwipe)
	})
	return r
}

// NewServer wraps the router in an http.Server with conservative timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func requestLogger(logger *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := logger.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
				"remote_ip":   r.RemoteAddr,
			})
			if status >= http.StatusInternalServerError {
				entry.Warn("request")
				return
			}
			entry.Debug("request")
		})
	}
}
