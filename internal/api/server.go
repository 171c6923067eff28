package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tallybook/internal/config"
	"tallybook/internal/domain"
	"tallybook/internal/events"
	"tallybook/internal/logging"
	"tallybook/internal/models"
	"tallybook/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// TransactionWriter records a transaction remotely or locally.
type TransactionWriter interface {
	Write(ctx context.Context, payload models.Transaction) (*models.WriteResult, error)
}

// ReportSource serves the dashboard summary.
type ReportSource interface {
	Summary() service.Summary
	Refresh(ctx context.Context) (service.Summary, error)
}

// SignalSource exposes sync completion signals.
type SignalSource interface {
	Subscribe() *events.Subscription
	Last() (models.SyncSignal, bool)
}

// Deps are the components the local API fronts.
type Deps struct {
	Writer  TransactionWriter
	Queue   domain.Queue
	Drainer domain.Drainer
	Conn    domain.ConnectivityReader
	Reports ReportSource
	Signals SignalSource
}

// Server is the local HTTP API the UI talks to.
type Server struct {
	server *http.Server
	logger *zerolog.Logger
}

func NewServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *Server {
	logger = logging.Component(logger, "api")
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           NewRouter(cfg, deps, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// NewRouter mounts every route. /health stays outside authentication.
func NewRouter(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) chi.Router {
	h := &handler{deps: deps, logger: logger}
	auth := NewHTTPAuth(cfg)

	r := chi.NewRouter()
	r.Use(loggingMiddleware(logger))

	r.Get("/health", h.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Post("/transactions", h.createTransaction)
		r.Get("/transactions/local", h.listLocal)
		r.Get("/queue/pending", h.listPending)
		r.Delete("/queue/{localID}", h.deleteEntry)
		r.Post("/sync", h.sync)
		r.Get("/sync/events", h.syncEvents)
		r.Get("/status", h.status)
		r.Get("/reports/summary", h.reportSummary)
	})

	return r
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
