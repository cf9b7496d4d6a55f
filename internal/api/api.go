// Package api sets up and starts the API server with routing and middleware.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/naarscars/admission/internal/api/middleware"
	"github.com/naarscars/admission/internal/api/routes/invites"
	"github.com/naarscars/admission/internal/api/routes/ping"
	"github.com/naarscars/admission/internal/api/routes/session"
	"github.com/naarscars/admission/internal/api/routes/signup"
	"github.com/naarscars/admission/internal/env"
	"github.com/naarscars/admission/internal/obs"
)

const (
	serverPort      = 8080
	shutdownTimeout = 10 * time.Second
	paceRetryAfter  = time.Second
)

// NewRouter assembles the full middleware chain and routes.
func NewRouter(e *env.Env) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.AddRequestID)
	router.Use(middleware.LogRequest(e.Logger))
	router.Use(middleware.InjectEnv(e))
	router.Use(middleware.AddCors)
	router.Use(obs.Instrument)

	router.Route("/api", func(r chi.Router) {
		r.Get("/ping", ping.HandlePing)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Pace(e.Advisory, paceRetryAfter))
			r.Post("/signup", signup.HandleSignup)
			r.Post("/login", session.HandleLogin)
		})

		r.Route("/invites", func(r chi.Router) {
			r.Use(middleware.AuthorizeRequest)
			r.Post("/", invites.HandleCreateInvite)
			r.Get("/", invites.HandleListInvites)
		})
	})

	router.Method(http.MethodGet, "/metrics", obs.Handler())

	return router
}

// Start serves the API until the context is cancelled, then shuts down
// gracefully.
func Start(ctx context.Context, e *env.Env) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", serverPort),
		Handler:           NewRouter(e),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	e.Logger.Info(fmt.Sprintf("Listening at 0.0.0.0:%d", serverPort))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}
