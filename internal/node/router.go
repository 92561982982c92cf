package node

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bubbles.ai/internal/persistence/indexdb"
	"bubbles.ai/internal/protocol"
)

// StateSource is the part of Node the HTTP layer reads.
type StateSource interface {
	State(ctx context.Context) (protocol.StateMsg, error)
}

// RouterConfig holds the router's dependencies. NewRouter starts nothing, so
// tests can mount the result on httptest.NewServer.
type RouterConfig struct {
	State StateSource
	// Index is optional; /v1/checkpoints answers 503 without it.
	Index *indexdb.SQLiteIndex
	// WS serves /v1/ws when set.
	WS http.Handler

	CORSOrigins    []string
	DisableLogging bool
}

func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	origins := cfg.CORSOrigins
	if origins == nil {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/state", stateHandler(cfg.State))
		r.Get("/checkpoints", checkpointsHandler(cfg.Index))
		r.Get("/index/stats", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, cfg.Index.Stats())
		})
		if cfg.WS != nil {
			r.Handle("/ws", cfg.WS)
		}
	})
	return r
}

func stateHandler(src StateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		st, err := src.State(ctx)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

type checkpointJSON struct {
	Timestamp int64   `json:"timestamp"`
	Digest    string  `json:"digest"`
	Path      string  `json:"path,omitempty"`
	Users     int     `json:"users"`
	Bubbles   int     `json:"bubbles"`
	Portals   int     `json:"portals"`
	Resources int     `json:"resources"`
	TotalMass float64 `json:"total_mass"`
}

func checkpointsHandler(idx *indexdb.SQLiteIndex) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if idx == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "index disabled"})
			return
		}
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 1000 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad limit"})
				return
			}
			limit = n
		}
		rows, err := idx.LatestCheckpoints(r.Context(), limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		out := make([]checkpointJSON, 0, len(rows))
		for _, c := range rows {
			out = append(out, checkpointJSON(c))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
