package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tablepool/pkg/config"
	"github.com/ajitpratap0/tablepool/pkg/logger"
	"github.com/ajitpratap0/tablepool/pkg/observability"
	"github.com/ajitpratap0/tablepool/pkg/readerpool"
	"github.com/ajitpratap0/tablepool/pkg/store/registry"
)

// loadConfig reads the configuration file, when one is given, over the
// defaults and applies flag and environment overrides.
func (a *app) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if a.cfgFile != "" {
		if err := config.Load(a.cfgFile, cfg); err != nil {
			return nil, err
		}
	}

	if a.v.IsSet("logging.level") && a.v.GetString("logging.level") != "" {
		cfg.Logging.Level = a.v.GetString("logging.level")
	}
	if s := a.v.GetString("backend.type"); s != "" {
		cfg.Backend.Type = s
	}
	if s := a.v.GetString("backend.table"); s != "" {
		cfg.Backend.Table = s
	}
	if s := a.v.GetString("backend.dsn"); s != "" {
		cfg.Backend.DSN = s
	}
	if n := a.v.GetInt("pool.max_active"); n > 0 {
		cfg.Pool.MaxActive = n
	}
	if s := a.v.GetString("pool.exhaustion_policy"); s != "" {
		cfg.Pool.ExhaustionPolicy = s
	}
	if d := a.v.GetDuration("pool.max_wait"); d > 0 {
		cfg.Pool.MaxWait = config.Duration(d)
	}
	if s := a.v.GetString("observability.metrics_addr"); s != "" {
		cfg.Observability.MetricsAddr = s
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is an open reader pool plus whatever was started alongside it.
type session struct {
	cfg     *config.Config
	pool    *readerpool.ReaderPool
	log     *zap.Logger
	closers []func(context.Context) error
}

// open builds the logger, tracing, backend and reader pool described by the
// configuration.
func (a *app) open(ctx context.Context) (*session, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, err
	}
	log := logger.WithContext(ctx).With(zap.String("component", "tablepool-cli"))
	s := &session{cfg: cfg, log: log}

	if cfg.Observability.EnableTracing {
		if err := observability.InitTracing(observability.FromConfig(cfg.Observability, version)); err != nil {
			return nil, err
		}
		s.closers = append(s.closers, observability.Shutdown)
	}

	readers, err := registry.Open(ctx, &cfg.Backend)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	if c, ok := readers.(io.Closer); ok {
		s.closers = append(s.closers, func(context.Context) error { return c.Close() })
	}

	rp, err := readerpool.NewFromConfig(readers, cfg.Pool,
		readerpool.WithLogger(log),
		readerpool.WithOpenTimeout(cfg.Backend.OpenTimeout.Std()))
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.pool = rp

	reg, err := observability.RegisterPoolGauges(observability.Meter(), rp)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.closers = append(s.closers, func(context.Context) error { return reg.Unregister() })

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		s.serveMetrics(addr)
	}
	return s, nil
}

func (s *session) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server failed", zap.Error(err))
		}
	}()
	s.log.Info("serving metrics", zap.String("addr", addr))
	s.closers = append(s.closers, srv.Shutdown)
}

// Close shuts the pool down, then everything started with it in reverse
// order.
func (s *session) Close() error {
	var errs []error
	if s.pool != nil {
		errs = append(errs, s.pool.Close())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i](ctx))
	}
	return errors.Join(errs...)
}
