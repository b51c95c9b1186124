package metricsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type App struct {
	log      *slog.Logger
	server   *http.Server
	port     int
	draining atomic.Bool
}

// New creates the HTTP listener serving /metrics and /healthz.
func New(log *slog.Logger, port int) *App {
	a := &App{
		log:  log,
		port: port,
	}

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           a.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return a
}

func (a *App) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if a.draining.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("draining"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "metricsapp.Run"

	l, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	a.log.Info("metrics server started", slog.String("addr", l.Addr().String()))

	if err := a.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Drain makes /healthz report 503 while the process winds down.
func (a *App) Drain() {
	a.draining.Store(true)
}

func (a *App) Stop(ctx context.Context) error {
	const op = "metricsapp.Stop"

	a.log.With(slog.String("op", op)).
		Info("stopping metrics server", slog.Int("port", a.port))

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
