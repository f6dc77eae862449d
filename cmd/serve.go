package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/atelier-north/studio-ops/internal/engine"
	"github.com/atelier-north/studio-ops/internal/model"
	"github.com/atelier-north/studio-ops/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newRouter(env *engineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	if cfg.Server.RateLimit > 0 {
		r.Use(rateLimit(cfg.Server.RateLimit))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/detections", func(w http.ResponseWriter, req *http.Request) {
		var d model.Detection
		if err := json.NewDecoder(req.Body).Decode(&d); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		suggestions, err := env.service.GenerateSuggestions(req.Context(), d)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"created": len(suggestions), "suggestions": suggestions})
	})

	r.Route("/suggestions", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			out, err := env.store.ListSuggestions(req.Context(), model.SuggestionFilter{
				Status:      model.SuggestionStatus(q.Get("status")),
				Type:        q.Get("type"),
				ProjectCode: q.Get("project"),
			})
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, out)
		})

		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			sug, err := env.store.GetSuggestion(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, sug)
		})

		r.Get("/{id}/preview", func(w http.ResponseWriter, req *http.Request) {
			preview, err := env.service.Preview(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, preview)
		})

		r.Post("/{id}/approve", func(w http.ResponseWriter, req *http.Request) {
			var body reviewRequest
			decodeBody(req, &body)
			outcome, err := env.service.Approve(req.Context(), chi.URLParam(req, "id"), body.Reviewer, !body.NoApply)
			writeReview(w, outcome, err)
		})

		r.Post("/{id}/reject", func(w http.ResponseWriter, req *http.Request) {
			var body reviewRequest
			decodeBody(req, &body)
			outcome, err := env.service.Reject(req.Context(), chi.URLParam(req, "id"), body.Reviewer, body.Reason)
			writeReview(w, outcome, err)
		})

		r.Post("/{id}/modify", func(w http.ResponseWriter, req *http.Request) {
			var body reviewRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Data == nil {
				writeError(w, http.StatusBadRequest, "corrected data is required")
				return
			}
			outcome, err := env.service.Modify(req.Context(), chi.URLParam(req, "id"), body.Reviewer, *body.Data, !body.NoApply)
			writeReview(w, outcome, err)
		})

		r.Post("/{id}/rollback", func(w http.ResponseWriter, req *http.Request) {
			ok, err := env.service.Rollback(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"reversed": ok})
		})
	})

	r.Route("/batches", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			out, err := env.store.ListBatches(req.Context(), model.BatchStatus(req.URL.Query().Get("status")), 0)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, out)
		})

		r.Post("/process", func(w http.ResponseWriter, req *http.Request) {
			result, err := env.batcher.ProcessBatches(req.Context(), cfg.Batch.Hours, cfg.Batch.Limit)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, result)
		})

		r.Post("/{id}/approve", func(w http.ResponseWriter, req *http.Request) {
			var body reviewRequest
			decodeBody(req, &body)
			decision, err := env.batcher.ApproveBatch(req.Context(), chi.URLParam(req, "id"), body.Reviewer)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, decision)
		})

		r.Post("/{id}/reject", func(w http.ResponseWriter, req *http.Request) {
			var body reviewRequest
			decodeBody(req, &body)
			decision, err := env.batcher.RejectBatch(req.Context(), chi.URLParam(req, "id"), body.Reviewer, body.Reason)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, decision)
		})
	})

	r.Get("/patterns", func(w http.ResponseWriter, req *http.Request) {
		out, err := env.learner.GetLearnedPatterns(req.Context(),
			model.PatternType(req.URL.Query().Get("type")), req.URL.Query().Get("all") == "")
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	return r
}

type reviewRequest struct {
	Reviewer string               `json:"reviewer"`
	Reason   string               `json:"reason,omitempty"`
	NoApply  bool                 `json:"no_apply,omitempty"`
	Data     *model.SuggestedData `json:"data,omitempty"`
}

func decodeBody(req *http.Request, v any) {
	_ = json.NewDecoder(req.Body).Decode(v)
}

func writeReview(w http.ResponseWriter, outcome *engine.ReviewOutcome, err error) {
	if err != nil {
		var vErr *engine.ValidationError
		if eris.As(err, &vErr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": vErr.Errors})
			return
		}
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if store.IsNotFound(err) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusConflict, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// rateLimit applies a per-client token bucket. Clients are keyed by
// remote IP; the map is never pruned, which is fine for a small internal
// reviewer pool.
func rateLimit(perSecond float64) func(http.Handler) http.Handler {
	var mu sync.Mutex
	limiters := map[string]*rate.Limiter{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			host, _, err := net.SplitHostPort(req.RemoteAddr)
			if err != nil {
				host = req.RemoteAddr
			}
			mu.Lock()
			lim, ok := limiters[host]
			if !ok {
				lim = rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1)
				limiters[host] = lim
			}
			mu.Unlock()

			if !lim.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
