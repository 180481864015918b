package grpcserver

import (
	"context"
	"net"
	"time"

	"github.com/ak7sky/asn-service/internal/core"
	"github.com/ak7sky/asn-service/internal/core/matcher"
	api "github.com/ak7sky/asn-service/internal/grpc/api"
	"github.com/ak7sky/asn-service/internal/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const defaultShutdownTimeout = 10 * time.Second

type Settings struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type AppServer struct {
	server          *grpc.Server
	health          *health.Server
	logger          logger.Logger
	errCh           chan error
	shutdownTimeout time.Duration
}

// Start listens on settings.Addr and serves in the background.
// Listen and serve failures are reported on ErrCh.
func Start(asnsrv core.AsnService, ranges *matcher.Matcher, settings Settings, logger logger.Logger) *AppServer {
	appServer := newAppServer(asnsrv, ranges, settings, logger)
	listener, err := net.Listen("tcp", settings.Addr)
	if err != nil {
		appServer.errCh <- err
		return appServer
	}
	appServer.serve(listener)
	return appServer
}

// StartOn serves on an already open listener.
func StartOn(listener net.Listener, asnsrv core.AsnService, ranges *matcher.Matcher, settings Settings, logger logger.Logger) *AppServer {
	appServer := newAppServer(asnsrv, ranges, settings, logger)
	appServer.serve(listener)
	return appServer
}

func newAppServer(asnsrv core.AsnService, ranges *matcher.Matcher, settings Settings, logger logger.Logger) *AppServer {
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			loggerInterceptor(logger),
			reqValidatorInterceptor(),
		),
	)
	api.RegisterMatchServiceServer(grpcServer, newHandler(asnsrv, ranges))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	shutdownTimeout := settings.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &AppServer{
		server:          grpcServer,
		health:          healthServer,
		logger:          logger,
		errCh:           make(chan error, 1),
		shutdownTimeout: shutdownTimeout,
	}
}

func (appServer *AppServer) serve(listener net.Listener) {
	appServer.logger.Info("starting server on %s", listener.Addr())
	appServer.health.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)

	go func() {
		if err := appServer.server.Serve(listener); err != nil {
			appServer.errCh <- err
		}
		close(appServer.errCh)
	}()
}

func (appServer *AppServer) ErrCh() <-chan error {
	return appServer.errCh
}

func (appServer *AppServer) Shutdown() error {
	appServer.health.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), appServer.shutdownTimeout)
	defer cancel()
	return shutdown(ctx, appServer.server)
}

func shutdown(ctx context.Context, server *grpc.Server) error {
	gracefulStopDone := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(gracefulStopDone)
	}()

	select {
	case <-gracefulStopDone:
		return nil
	case <-ctx.Done():
		server.Stop()
		return ctx.Err()
	}
}
