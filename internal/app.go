package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ak7sky/asn-service/internal/config"
	"github.com/ak7sky/asn-service/internal/core"
	"github.com/ak7sky/asn-service/internal/core/matcher"
	"github.com/ak7sky/asn-service/internal/core/model"
	"github.com/ak7sky/asn-service/internal/core/service"
	"github.com/ak7sky/asn-service/internal/core/storage/mem"
	"github.com/ak7sky/asn-service/internal/core/storage/redis"
	"github.com/ak7sky/asn-service/internal/dns"
	grpcserver "github.com/ak7sky/asn-service/internal/grpc/server"
	"github.com/ak7sky/asn-service/internal/logger"
	"github.com/ak7sky/asn-service/internal/metrics"
	"github.com/ak7sky/asn-service/internal/provider"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var (
	errInitApp      = "failed to init app"
	errBuildMatcher = "failed to build served matcher"
)

// App holds the services assembled from a Config.
type App struct {
	Config   *config.Config
	Logger   logger.Logger
	Provider core.Provider
	Manager  *service.AsnManager
	Resolver *dns.Resolver

	closers []func() error
}

type Option func(*options)

type options struct {
	meterProvider metric.MeterProvider
	provider      core.Provider
	cache         core.Cache
	hosts         core.HostResolver
}

// WithMeterProvider exports service metrics. Without it metrics are discarded.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithProvider bypasses the provider named in the config.
func WithProvider(p core.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithCache bypasses the cache store named in the config.
func WithCache(c core.Cache) Option {
	return func(o *options) { o.cache = c }
}

func WithHostResolver(hosts core.HostResolver) Option {
	return func(o *options) { o.hosts = hosts }
}

func New(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (*App, error) {
	o := options{meterProvider: noop.NewMeterProvider()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: log}

	appMetrics, err := metrics.New(o.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errInitApp, err)
	}

	if o.provider == nil {
		o.provider, err = provider.New(cfg.Provider, providerConfig(cfg), log.With("provider", cfg.Provider))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errInitApp, err)
		}
		if closer, ok := o.provider.(interface{ Close() error }); ok {
			a.closers = append(a.closers, closer.Close)
		}
	}
	a.Provider = o.provider

	if o.cache == nil && cfg.Cache.Enabled {
		if o.cache, err = a.openCache(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("%s: %w", errInitApp, err)
		}
	}

	managerOpts := []service.Option{
		service.WithChunkSize(cfg.Batch.ChunkSize),
		service.WithMatcherMode(matcher.ParseMode(cfg.Matcher.Mode)),
		service.WithMetrics(appMetrics),
		service.WithLogger(log.With("component", "manager")),
	}
	resolverOpts := []dns.Option{
		dns.WithRecordType(dns.ParseRecordType(cfg.DNS.RecordType)),
		dns.WithLogger(log.With("component", "dns")),
	}
	if o.cache != nil {
		managerOpts = append(managerOpts, service.WithCache(o.cache, service.CacheSettings{
			Enabled: cfg.Cache.Enabled,
			TTL:     cfg.Cache.TTL,
			Prefix:  cfg.Cache.Prefix,
		}))
		resolverOpts = append(resolverOpts, dns.WithCache(o.cache, dns.CacheSettings{
			Enabled: cfg.Cache.Enabled,
			TTL:     cfg.DNS.CacheTTL,
			Prefix:  cfg.Cache.Prefix,
		}))
	}
	if o.hosts != nil {
		resolverOpts = append(resolverOpts, dns.WithHostResolver(o.hosts))
	}

	a.Manager = service.New(a.Provider, managerOpts...)
	a.Resolver = dns.New(a.Manager, resolverOpts...)
	return a, nil
}

func (a *App) openCache(ctx context.Context) (core.Cache, error) {
	switch a.Config.Cache.Store {
	case config.StoreRedis:
		redisCfg := a.Config.Cache.Redis
		store, err := redis.Dial(ctx, redisCfg.Addr, redisCfg.Password, redisCfg.DB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.Logger.Info("using redis cache at %s", redisCfg.Addr)
		return store, nil
	default:
		return mem.NewCacheMemStorage(a.Config.Cache.Size, a.Config.Cache.TTL), nil
	}
}

// BuildMatcher compiles the configured ASNs and static ranges into one Matcher.
func (a *App) BuildMatcher(ctx context.Context) (*matcher.Matcher, error) {
	compiled, err := a.Manager.BuildMatcher(ctx, a.Config.Matcher.Asns...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errBuildMatcher, err)
	}
	b := compiled.Builder()
	for _, text := range a.Config.Matcher.Ranges {
		if err = b.AddText(text, model.WithLabel("static")); err != nil {
			return nil, fmt.Errorf("%s: %w", errBuildMatcher, err)
		}
	}
	return b.Compile(), nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func providerConfig(cfg *config.Config) provider.Config {
	return provider.Config{
		Timeout:         cfg.HTTP.Timeout,
		Retries:         cfg.HTTP.Retries,
		RetryDelay:      cfg.HTTP.RetryDelay,
		BreakerFailures: cfg.HTTP.BreakerFailures,
		BreakerTimeout:  cfg.HTTP.BreakerTimeout,
		Token:           cfg.Providers.IPInfo.Token,
		Database:        cfg.Providers.GeoLite.Database,
	}
}

// Run serves the configured matcher over gRPC until a signal or a server error.
func Run(ctx context.Context, cfg *config.Config, opts ...Option) error {
	appLogger := logger.NewLogger(cfg.Log.Level)

	a, err := New(ctx, cfg, appLogger, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			appLogger.Error("failed to release resources: %s", err)
		}
	}()

	ranges, err := a.BuildMatcher(ctx)
	if err != nil {
		return err
	}
	appLogger.Info("serving %d ranges in %s mode", ranges.Count(), ranges.Mode())

	appServer := grpcserver.Start(a.Manager, ranges, grpcserver.Settings{
		Addr:            cfg.GRPC.Addr,
		ShutdownTimeout: cfg.GRPC.ShutdownTimeout,
	}, appLogger.With("component", "grpc"))

	// Waiting signal
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	var serveErr error
	select {
	case oss := <-signalCh:
		appLogger.Info("app stops after receiving a signal %s", oss)
	case <-ctx.Done():
		appLogger.Info("app stops after context cancellation")
	case serveErr = <-appServer.ErrCh():
		if serveErr != nil {
			appLogger.Error("app stops after an err %s", serveErr)
		} else {
			appLogger.Info("app stops after the server stopped")
		}
	}

	// Shutdown
	if err = appServer.Shutdown(); err != nil {
		appLogger.Error("app stopped with err %s", err)
	}
	return serveErr
}
