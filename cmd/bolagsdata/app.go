package main

import (
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/orgnr/bolagsdata/internal/auth"
	"github.com/orgnr/bolagsdata/internal/cache"
	"github.com/orgnr/bolagsdata/internal/config"
	"github.com/orgnr/bolagsdata/internal/metrics"
	"github.com/orgnr/bolagsdata/internal/net/breaker"
	"github.com/orgnr/bolagsdata/internal/net/gateway"
	"github.com/orgnr/bolagsdata/internal/net/ratelimit"
	"github.com/orgnr/bolagsdata/internal/net/retry"
	"github.com/orgnr/bolagsdata/internal/orchestrator"
	"github.com/orgnr/bolagsdata/internal/providers"
	"github.com/orgnr/bolagsdata/internal/providers/registry"
	"github.com/orgnr/bolagsdata/internal/providers/scraper"
	"github.com/orgnr/bolagsdata/internal/store/postgres"
	"github.com/orgnr/bolagsdata/internal/syncer"
	"github.com/orgnr/bolagsdata/internal/xbrl"
)

// loadConfig reads the file named by --config, applies environment
// overrides and sets the global log level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if !cfg.Log.Pretty {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return cfg, nil
}

// openStore connects to Postgres with the configured pool settings. It
// requires only a DSN, so schema and import commands run without
// provider credentials.
func openStore(cfg *config.Config) (*postgres.Store, error) {
	pc := postgres.DefaultConfig()
	pc.DSN = cfg.Database.DSN
	if cfg.Database.MaxOpenConns > 0 {
		pc.MaxOpenConns = cfg.Database.MaxOpenConns
	}
	if cfg.Database.MaxIdleConns > 0 {
		pc.MaxIdleConns = cfg.Database.MaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		pc.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	}
	if cfg.Database.QueryTimeout > 0 {
		pc.QueryTimeout = cfg.Database.QueryTimeout
	}
	return postgres.Open(pc)
}

// app is the wired engine behind the serve, fetch and sync commands.
type app struct {
	cfg        *config.Config
	store      *postgres.Store
	metrics    *metrics.Registry
	breakers   *breaker.Registry
	orch       *orchestrator.Orchestrator
	syncer     *syncer.Syncer
	pipeline   *xbrl.Pipeline
	siteSearch *scraper.Client
}

// newApp validates the configuration and builds the engine: store, guarded
// gateway, enabled providers, orchestrator and the bulk jobs.
func newApp(cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.NewRegistry()
	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
	})

	limiter := ratelimit.New(cfg.RateLimit.DefaultInterval)
	setHostInterval(limiter, cfg.Scraper.BaseURL, cfg.RateLimit.ScraperInterval)
	setHostInterval(limiter, cfg.Registry.BaseURL, cfg.RateLimit.RegistryInterval)
	if hostOf(cfg.Registry.DocumentsBase()) != hostOf(cfg.Registry.BaseURL) {
		// Dedicated document host. On a shared host the report sweep's
		// own request delay does the pacing instead.
		setHostInterval(limiter, cfg.Registry.DocumentsBase(), cfg.RateLimit.DocumentsInterval)
	}

	pol := retry.Default()
	if cfg.Retry.MaxRetries > 0 {
		pol.MaxRetries = cfg.Retry.MaxRetries
	}
	if cfg.Retry.BackoffBase > 0 {
		pol.Base = cfg.Retry.BackoffBase
	}
	if cfg.Retry.BackoffMax > 0 {
		pol.Cap = cfg.Retry.BackoffMax
	}
	pol.Jitter = cfg.Retry.Jitter

	gw := gateway.New(gateway.Config{
		RequestTimeout: cfg.HTTP.RequestTimeout,
		ConnectTimeout: cfg.HTTP.ConnectTimeout,
		Retry:          pol,
	}, limiter, breakers,
		gateway.WithMetrics(m),
		gateway.WithCache(cache.New(cfg.Cache.RedisAddr)),
	)

	var (
		sources  []providers.Provider
		pipeline *xbrl.Pipeline
	)
	if cfg.Registry.Enabled {
		tokens := auth.NewTokenManager(auth.Config{
			TokenURL:     cfg.Registry.TokenURL,
			ClientID:     cfg.Registry.ClientID,
			ClientSecret: cfg.Registry.ClientSecret,
			Scope:        cfg.Registry.Scope,
		})
		// The registry comes first; the merge prefers the first source
		// that names a field.
		sources = append(sources, registry.New(gw, tokens, cfg.Registry.BaseURL))
		pipeline = xbrl.NewPipeline(xbrl.NewClient(gw, tokens, cfg.Registry.DocumentsBase()), st).WithMetrics(m)
	}
	var siteSearch *scraper.Client
	if cfg.Scraper.Enabled {
		siteSearch = scraper.New(gw, cfg.Scraper.BaseURL)
		sources = append(sources, siteSearch)
	}

	orch := orchestrator.New(st, sources, orchestrator.Config{
		CacheTTL:    cfg.Cache.TTL(),
		MaxParallel: cfg.Sync.MaxParallelSources,
	})

	sy := syncer.New(orch, pipeline, st, syncer.Config{
		RequestDelay: cfg.Sync.XBRLRequestDelay,
	}).WithMetrics(m)

	return &app{
		cfg:        cfg,
		store:      st,
		metrics:    m,
		breakers:   breakers,
		orch:       orch,
		syncer:     sy,
		pipeline:   pipeline,
		siteSearch: siteSearch,
	}, nil
}

// Close releases the database pool.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("closing store")
	}
}

func setHostInterval(l *ratelimit.Limiter, rawURL string, interval time.Duration) {
	host := hostOf(rawURL)
	if host == "" || interval <= 0 {
		return
	}
	l.SetInterval(host, interval)
}

func hostOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
