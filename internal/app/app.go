package app

import (
	"log/slog"

	"sessions/config"
	grpcapp "sessions/internal/app/grpc"
	metricsapp "sessions/internal/app/metrics"
	"sessions/internal/audit"
	"sessions/internal/identity"
	"sessions/internal/identity/local"
	"sessions/internal/lib/background"
	"sessions/internal/services/sessions"
)

type App struct {
	GRPCServer    *grpcapp.App
	MetricsServer *metricsapp.App
	StorageApp    *StorageApp
	Provider      *local.Provider
	Manager       *sessions.Manager
	Audit         *audit.Sink
}

func New(
	log *slog.Logger,
	cfg *config.Config,
	storageApp *StorageApp,
	opts ...sessions.Option,
) *App {
	storage := storageApp.Storage()

	provider := local.New(log, storage, storage, local.Config{
		Issuer:            cfg.Identity.Issuer,
		SigningSecret:     cfg.Identity.SigningSecret,
		AccessTTL:         cfg.Identity.AccessTTL,
		RefreshTTL:        cfg.Identity.RefreshTTL,
		AttemptsPerMinute: cfg.Identity.AttemptsPerMinute,
	})

	gateway := identity.New(log, provider, cfg.Identity.Timeout)

	auditSink := audit.New(log, storage, cfg.Audit.Buffer)

	tasks := background.New(log, cfg.Sessions.BackgroundTimeout)

	manager := sessions.New(
		log,
		sessions.Config{
			DefaultTTL:           cfg.Sessions.DefaultTTL(),
			RememberMeTTL:        cfg.Sessions.RememberMeTTL(),
			MaxActiveSessions:    cfg.Sessions.MaxActive,
			ProviderRetryBackoff: cfg.Identity.RetryBackoff,
		},
		gateway,
		storage,
		storage,
		storage,
		auditSink,
		tasks,
		opts...,
	)

	grpcApp := grpcapp.New(log, manager, manager, grpcapp.Config{
		Port:         cfg.GRPC.Port,
		Timeout:      cfg.GRPC.Timeout,
		TrustedPeers: cfg.GRPC.TrustedPeers,
	})

	return &App{
		GRPCServer:    grpcApp,
		MetricsServer: metricsapp.New(log, cfg.Metrics.Port),
		StorageApp:    storageApp,
		Provider:      provider,
		Manager:       manager,
		Audit:         auditSink,
	}
}
