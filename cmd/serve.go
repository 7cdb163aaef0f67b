package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kabuten/sweep-cli/internal/sector"
	"github.com/kabuten/sweep-cli/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the sweep trigger and query API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newRouter(e, cfg.Server.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("server listening", zap.Int("port", cfg.Server.Port))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		zap.L().Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	},
}

// newRouter builds the API. Trigger endpoints mutate state and carry the
// bearer-token check; query endpoints are open.
func newRouter(e *env, authToken string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/action-log", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		entries, err := e.Store.QueryLog(r.Context(), store.LogFilter{
			CompanyID: r.URL.Query().Get("company_id"),
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			zap.L().Error("action log query failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(authToken))

		r.Post("/sweep/run", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				CompanyID string `json:"company_id"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CompanyID == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "company_id is required"})
				return
			}
			c, err := e.Store.GetCompany(r.Context(), req.CompanyID)
			if err != nil {
				zap.L().Error("company lookup failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
				return
			}
			if c == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "company not found"})
				return
			}
			writeJSON(w, http.StatusOK, e.Engine.SweepCompany(r.Context(), *c))
		})

		r.Post("/sweep/batch", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Batch int `json:"batch"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Batch < 1 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "batch (>= 1) is required"})
				return
			}
			companies, err := e.Store.ListCompanies(r.Context())
			if err != nil {
				zap.L().Error("roster list failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
				return
			}
			writeJSON(w, http.StatusOK, e.Scheduler.RunBatch(r.Context(), companies, req.Batch))
		})

		r.Post("/sectors/sweep", func(w http.ResponseWriter, r *http.Request) {
			sectors, err := sector.LoadSectors(cfg.Sector.ConfigPath)
			if err != nil {
				zap.L().Error("sector config load failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "sector config unavailable"})
				return
			}
			companies, err := e.Store.ListCompanies(r.Context())
			if err != nil {
				zap.L().Error("roster list failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
				return
			}
			writeJSON(w, http.StatusOK, e.Aggregator.RunAll(r.Context(), sectors, companies))
		})
	})

	return r
}

// bearerAuth rejects trigger requests without the configured token. An
// empty token leaves the endpoints open, for local use.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
				if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
					writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
