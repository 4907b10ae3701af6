package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wot-id/identity/auth"
	"github.com/wot-id/identity/challenge"
	"github.com/wot-id/identity/health"
	"github.com/wot-id/identity/identity"
	"github.com/wot-id/identity/ledger"
	"github.com/wot-id/identity/pkg/metrics"
	"github.com/wot-id/identity/pkg/robusthttp"
	"github.com/wot-id/identity/subject"
	"github.com/wot-id/identity/util/cliutil"
	"github.com/wot-id/identity/verification"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/time/rate"
)

type Server struct {
	engine *verification.Engine
	health *health.Aggregator
	echo   *echo.Echo
	httpd  *http.Server
	logger *slog.Logger

	// released on Shutdown, in order
	closers []io.Closer
}

type Config struct {
	Logger *slog.Logger
	Bind   string

	LedgerURL       string
	LedgerRateLimit int
	// "ledger" or "universal"
	Resolver       string
	ResolverURL    string
	ResolveMethod  string
	ResolveTimeout time.Duration

	ChallengeTTL time.Duration
	RedisURL     string

	SubjectDirectory  string
	DatabaseURL       string
	IdentityPackageID string
	DevSubjects       bool
	OracleTimeout     time.Duration
	OracleCacheSize   int
	OracleCacheTTL    time.Duration

	HealthUpstreams []string
}

// registers collectors on the default prometheus registry, which only works once per process
var promMiddleware = sync.OnceValue(func() echo.MiddlewareFunc {
	return echoprometheus.NewMiddleware("wotid")
})

func NewServer(ctx context.Context, config *Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	agg := &health.Aggregator{
		Daemon:  "wotid",
		Version: versioninfo.Short(),
		Checks:  []health.Check{health.SelfCheck("wotid", versioninfo.Short())},
	}

	lc := configLedger(config, logger)
	if lc != nil {
		agg.Checks = append(agg.Checks, health.LedgerCheck("ledger", lc))
	}

	resolver, err := configResolver(config, lc)
	if err != nil {
		return nil, err
	}

	upstreams, err := configUpstreams(config.HealthUpstreams)
	if err != nil {
		return nil, err
	}

	// everything from here on may hold resources, released by Shutdown or on a failed startup
	oracle, checks, closers, err := configOracle(config, lc, logger)
	if err != nil {
		return nil, err
	}
	agg.Checks = append(agg.Checks, checks...)
	agg.Checks = append(agg.Checks, upstreams...)

	var store challenge.Store
	storeOpts := []challenge.Option{
		challenge.WithLogger(logger.With("component", "challenge")),
	}
	if config.ChallengeTTL > 0 {
		storeOpts = append(storeOpts, challenge.WithTTL(config.ChallengeTTL))
	}
	if config.RedisURL != "" {
		rs, err := challenge.NewRedisStore(ctx, config.RedisURL, storeOpts...)
		if err != nil {
			closeAll(logger, closers)
			return nil, err
		}
		store = rs
		closers = append(closers, rs)
		redisCheck := health.PingCheck("redis", rs.Ping)
		redisCheck.Critical = true
		agg.Checks = append(agg.Checks, redisCheck)
	} else {
		ms := challenge.NewMemoryStore(storeOpts...)
		store = ms
		closers = append(closers, ms)
	}

	verifier := auth.NewEdDSAVerifier()
	verifier.Logger = logger.With("component", "auth")

	engine := verification.NewEngine(resolver, verifier, store, oracle)
	engine.ResolveTimeout = config.ResolveTimeout
	engine.OracleTimeout = config.OracleTimeout
	engine.Logger = logger.With("component", "verification")

	srv := newServer(engine, agg, logger)
	srv.closers = closers
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           config.Bind,
		WriteTimeout:   time.Minute,
		ReadTimeout:    time.Minute,
		MaxHeaderBytes: 1024 * 1024,
	}
	return srv, nil
}

func closeAll(logger *slog.Logger, closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Warn("failed to release resource", "err", err)
		}
	}
}

// Builds one HTTP check per upstream URL. Checks are named by host, or by the full URL when several share a host.
func configUpstreams(raws []string) ([]health.Check, error) {
	if len(raws) == 0 {
		return nil, nil
	}
	urls := make([]*url.URL, 0, len(raws))
	hosts := make(map[string]int)
	for _, raw := range raws {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid health upstream URL: %q", raw)
		}
		urls = append(urls, u)
		hosts[u.Host]++
	}

	hc := robusthttp.NewClient(robusthttp.WithMaxRetries(0))
	seen := make(map[string]bool)
	var checks []health.Check
	for i, u := range urls {
		name := u.Host
		if hosts[u.Host] > 1 {
			name = u.Redacted()
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		checks = append(checks, health.HTTPCheck(name, raws[i], hc))
	}
	return checks, nil
}

// did:key is always resolved locally; every other method goes to the ledger node or a universal resolver.
func configResolver(config *Config, lc *ledger.Client) (*identity.MultiResolver, error) {
	resolver := identity.NewMultiResolver()
	resolver.AddHandler("key", identity.KeyResolver{})
	switch config.Resolver {
	case "", "ledger":
		if lc == nil {
			return nil, fmt.Errorf("ledger resolver requires a ledger URL")
		}
		lr := identity.NewLedgerResolver(lc)
		if config.ResolveMethod != "" {
			lr.Method = config.ResolveMethod
		}
		resolver.Fallback = lr
	case "universal":
		if config.ResolverURL == "" {
			return nil, fmt.Errorf("universal resolver requires a resolver URL")
		}
		hr := identity.NewHTTPResolver(config.ResolverURL)
		hr.UserAgent = "wotid/" + versioninfo.Short()
		resolver.Fallback = hr
	default:
		return nil, fmt.Errorf("unknown resolver type: %s", config.Resolver)
	}
	return resolver, nil
}

// configures a ledger client, or returns nil when no ledger URL is set
func configLedger(config *Config, logger *slog.Logger) *ledger.Client {
	if config.LedgerURL == "" {
		return nil
	}
	lc := ledger.NewClient(config.LedgerURL)
	lc.UserAgent = "wotid/" + versioninfo.Short()
	lc.Logger = logger.With("component", "ledger")
	if config.LedgerRateLimit > 0 {
		lc.Limiter = rate.NewLimiter(rate.Limit(config.LedgerRateLimit), 1)
	}
	return lc
}

// Picks the first configured subject oracle: SQL directory, JSON directory file, ledger contract, then the development entry.
func configOracle(config *Config, lc *ledger.Client, logger *slog.Logger) (subject.Oracle, []health.Check, []io.Closer, error) {
	var oracle subject.Oracle
	var checks []health.Check
	var closers []io.Closer
	switch {
	case config.DatabaseURL != "":
		db, err := cliutil.SetupDatabase(config.DatabaseURL, 10, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("subject database: %w", err)
		}
		sqldb, err := db.DB()
		if err != nil {
			return nil, nil, nil, err
		}
		so, err := subject.NewSQLOracle(db)
		if err != nil {
			sqldb.Close()
			return nil, nil, nil, err
		}
		closers = append(closers, sqldb)
		checks = append(checks, health.PingCheck("database", sqldb.PingContext))
		oracle = so
	case config.SubjectDirectory != "":
		so, err := subject.LoadStaticOracle(config.SubjectDirectory)
		if err != nil {
			return nil, nil, nil, err
		}
		oracle = so
	case config.IdentityPackageID != "":
		if lc == nil {
			return nil, nil, nil, fmt.Errorf("ledger subject oracle requires a ledger URL")
		}
		oracle = subject.NewLedgerOracle(lc, config.IdentityPackageID)
	case config.DevSubjects:
		logger.Warn("using development subject directory", "email", subject.DevEntry.Email, "did", subject.DevEntry.DID)
		so, err := subject.NewStaticOracle(subject.DevEntry)
		if err != nil {
			return nil, nil, nil, err
		}
		oracle = so
	default:
		return nil, nil, nil, fmt.Errorf("no subject oracle configured (need a database URL, subject directory, identity package ID, or --dev)")
	}

	if config.OracleCacheSize > 0 {
		oracle = subject.NewCachingOracle(oracle, config.OracleCacheSize, config.OracleCacheTTL)
	}
	return oracle, checks, closers, nil
}

func newServer(engine *verification.Engine, agg *health.Aggregator, logger *slog.Logger) *Server {
	e := echo.New()
	srv := &Server{
		engine: engine,
		health: agg,
		echo:   e,
		logger: logger,
	}

	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64K"))
	e.Use(otelecho.Middleware("wotid"))
	e.Use(promMiddleware())
	e.HTTPErrorHandler = srv.errorHandler
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         31536000, // 365 days
	}))

	e.GET("/", srv.WebHome)
	e.GET("/health", srv.HandleHealthCheck)
	e.POST("/api/v1/identity/initiate-challenge", srv.HandleInitiateChallenge)
	e.POST("/api/v1/identity/verify-signature", srv.HandleVerifySignature)
	return srv
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

func (srv *Server) RunAPI() error {
	srv.logger.Info("starting server", "bind", srv.httpd.Addr)
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for a signal to exit, or for the listener to fail.
	srv.logger.Info("registering OS exit signal handler")
	exitSignals := make(chan os.Signal, 1)
	signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(exitSignals)

	select {
	case sig := <-exitSignals:
		srv.logger.Info("received OS exit signal", "signal", sig)
	case err := <-serveErr:
		srv.logger.Error("HTTP server shutting down unexpectedly", "err", err)
		if serr := srv.Shutdown(); serr != nil {
			srv.logger.Error("HTTP server shutdown error", "err", serr)
		}
		return fmt.Errorf("HTTP server: %w", err)
	}

	if err := srv.Shutdown(); err != nil {
		srv.logger.Error("HTTP server shutdown error", "err", err)
	}
	srv.logger.Info("graceful shutdown complete")
	return nil
}

func (srv *Server) RunMetrics(ctx context.Context, listen string) error {
	return metrics.RunServer(ctx, listen)
}

func (srv *Server) Shutdown() error {
	srv.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if srv.httpd != nil {
		errs = append(errs, srv.httpd.Shutdown(ctx))
	}
	for _, c := range srv.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
