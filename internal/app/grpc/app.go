package grpcapp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/realip"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	sessionsgrpc "sessions/internal/grpc/sessions"
	"sessions/internal/interceptors"
	"sessions/internal/lib/logger/sl"
	"sessions/internal/metrics"
)

type App struct {
	log        *slog.Logger
	gRPCServer *grpc.Server
	health     *health.Server
	port       int
}

type Config struct {
	Port         int
	Timeout      time.Duration
	TrustedPeers []string
}

func InterceptorLogger(l *slog.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), msg, maskSensitiveFields(fields)...)
	})
}

// New creates new gRPC server app.
func New(
	log *slog.Logger,
	manager sessionsgrpc.Manager,
	validator interceptors.SessionValidator,
	cfg Config,
) *App {
	loggingOpts := []logging.Option{
		logging.WithLogOnEvents(
			logging.StartCall, logging.FinishCall,
		),
	}

	recoveryOpts := []recovery.Option{
		recovery.WithRecoveryHandler(func(p interface{}) (err error) {
			log.Error("Recovered from panic", slog.Any("panic", p))

			return status.Errorf(codes.Internal, "internal error")
		}),
	}

	realIPOpts := []realip.Option{
		realip.WithTrustedPeers(trustedPeers(log, cfg.TrustedPeers)),
		realip.WithHeaders([]string{realip.XForwardedFor, realip.XRealIp}),
		realip.WithTrustedProxiesCount(1),
	}

	authInterceptor := interceptors.NewAuthInterceptor(log, validator, sessionsgrpc.ProtectedMethods())

	logHeadersInterceptor := interceptors.NewLogHeadersInterceptor(log)

	gRPCServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		recovery.UnaryServerInterceptor(recoveryOpts...),
		realip.UnaryServerInterceptorOpts(realIPOpts...),
		metrics.UnaryServerInterceptor(),
		logging.UnaryServerInterceptor(InterceptorLogger(log), loggingOpts...),
		logHeadersInterceptor.LogHeadersUnary(),
		deadlineUnary(cfg.Timeout),
		authInterceptor.AuthorizeUnary(),
	))

	sessionsgrpc.Register(gRPCServer, manager)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(sessionsgrpc.ServiceName, healthgrpc.HealthCheckResponse_SERVING)
	healthgrpc.RegisterHealthServer(gRPCServer, healthServer)

	return &App{
		log:        log,
		gRPCServer: gRPCServer,
		health:     healthServer,
		port:       cfg.Port,
	}
}

func trustedPeers(log *slog.Logger, raw []string) []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(raw)+1)
	for _, value := range raw {
		prefix, err := netip.ParsePrefix(value)
		if err != nil {
			log.Warn("ignoring trusted peer", slog.String("value", value), sl.Err(err))
			continue
		}
		prefixes = append(prefixes, prefix)
	}
	if len(prefixes) == 0 {
		prefixes = append(prefixes, netip.MustParsePrefix("127.0.0.1/32")) // localhost
	}
	return prefixes
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "grpcapp.Run"

	l, err := net.Listen("tcp", fmt.Sprintf(":%d", a.port))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return a.Serve(l)
}

// Serve accepts connections on l until the server stops.
func (a *App) Serve(l net.Listener) error {
	const op = "grpcapp.Serve"

	a.log.Info("grpc server started", slog.String("addr", l.Addr().String()))

	if err := a.gRPCServer.Serve(l); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Drain flips health checks to NOT_SERVING so balancers stop routing new calls.
func (a *App) Drain() {
	a.log.Info("grpc server draining")
	a.health.Shutdown()
}

func (a *App) Stop() {
	const op = "grpcapp.Stop"

	a.log.With(slog.String("op", op)).
		Info("stopping gRPC server", slog.Int("port", a.port))

	a.gRPCServer.GracefulStop()
}

// ForceStop closes every connection without waiting for in-flight calls.
func (a *App) ForceStop() {
	a.gRPCServer.Stop()
}
