package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/render-cli/internal/model"
	"github.com/sells-group/render-cli/internal/render"
	"github.com/sells-group/render-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start webhook server for render requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		eng := render.NewEngine(st, render.Config{
			Browser:     cfg.Browser.Wrapper(),
			OutputDir:   cfg.Fetch.OutputDir,
			Workers:     cfg.Fetch.Workers,
			RatePerSec:  cfg.Fetch.RatePerSec,
			PageTimeout: time.Duration(cfg.Fetch.PageTimeoutSecs) * time.Second,
			Screenshot:  cfg.Fetch.Screenshot,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(ctx, st, eng),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// sessionRunner is the slice of the render engine the server drives.
type sessionRunner interface {
	Begin(ctx context.Context, urls []string) (*model.Session, error)
	Render(ctx context.Context, sess *model.Session, urls []string) (*model.Session, error)
}

// newRouter builds the HTTP API. runCtx bounds the lifetime of async
// renders, so in-flight sessions stop when the server shuts down.
func newRouter(runCtx context.Context, st store.Store, eng sessionRunner) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/render", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			URLs []string `json:"urls"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if len(body.URLs) == 0 {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "urls is required"})
			return
		}

		sess, err := eng.Begin(req.Context(), body.URLs)
		if err != nil {
			zap.L().Error("begin render session", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not create session"})
			return
		}

		// Render asynchronously; the session record carries the outcome.
		go func() {
			if _, err := eng.Render(runCtx, sess, body.URLs); err != nil {
				zap.L().Error("webhook render failed",
					zap.String("session", sess.ID),
					zap.Error(err),
				)
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":  "accepted",
			"session": sess.ID,
		})
	})

	r.Get("/sessions/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")

		sess, err := st.GetSession(req.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
			return
		}
		pages, err := st.ListPages(req.Context(), id)
		if err != nil {
			zap.L().Error("list session pages", zap.String("session", id), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load pages"})
			return
		}

		writeJSON(w, http.StatusOK, struct {
			*model.Session
			Pages []model.Page `json:"pages"`
		}{sess, pages})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
