// Package serverfx is a local host for a worker module: an fx application that
// serves the fetch entry over HTTP and fires the scheduled entry from the
// manifest's cron triggers.
package serverfx

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"time"

	chimd "github.com/go-chi/chi/v5/middleware"
	"github.com/joeydtaylor/steeze-worker/pkg/host/nethost"
	"github.com/joeydtaylor/steeze-worker/pkg/manifest"
	"github.com/joeydtaylor/steeze-worker/pkg/middleware/logger"
	"github.com/joeydtaylor/steeze-worker/pkg/middleware/metrics"
	"github.com/joeydtaylor/steeze-worker/pkg/transport/httpx"
	"github.com/joeydtaylor/steeze-worker/pkg/worker"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ---------- Options ----------

type Config struct {
	Service         string // for logs only
	ManifestEnv     string // e.g. WORKER_MANIFEST
	DefaultManifest string // e.g. "worker.toml"
	ListenEnv       string // overrides dev.listen
	TLSCertEnv      string // overrides dev.tls_cert
	TLSKeyEnv       string // overrides dev.tls_key
}

type Option func(*Config)

func WithService(s string) Option            { return func(c *Config) { c.Service = s } }
func WithManifestEnv(k string) Option        { return func(c *Config) { c.ManifestEnv = k } }
func WithDefaultManifest(path string) Option { return func(c *Config) { c.DefaultManifest = path } }
func WithListenEnv(k string) Option          { return func(c *Config) { c.ListenEnv = k } }
func WithTLSCertKeyEnv(cert, key string) Option {
	return func(c *Config) { c.TLSCertEnv, c.TLSKeyEnv = cert, key }
}

func defaultConfig() Config {
	return Config{
		Service:         "worker",
		ManifestEnv:     "WORKER_MANIFEST",
		DefaultManifest: "worker.toml",
		ListenEnv:       "SERVER_LISTEN_ADDRESS",
		TLSCertEnv:      "SSL_SERVER_CERTIFICATE",
		TLSKeyEnv:       "SSL_SERVER_KEY",
	}
}

// Module returns a complete Fx option set hosting mod.
func Module(mod *worker.Module, opts ...Option) fx.Option {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return fx.Options(
		logger.Module,
		metrics.Module,
		fx.Provide(httpx.NewChi),
		fx.Supply(mod),
		fx.Provide(func() Config { return cfg }),
		fx.Provide(provideManifest),
		fx.Provide(provideEnv),
		fx.Provide(provideBackground),
		fx.Provide(fx.Annotate(provideRouter, fx.ResultTags(`name:"app"`))),
		fx.Invoke(registerHooks),
	)
}

// ---------- Providers ----------

func provideManifest(cfg Config, zl *zap.Logger) (manifest.Config, error) {
	path := envOr(cfg.ManifestEnv, cfg.DefaultManifest)
	man, err := manifest.Load(path)
	if err != nil {
		zl.Error("manifest load failed", zap.Error(err), zap.String("path", path))
		return manifest.Config{}, err
	}
	return man, nil
}

func provideEnv(man manifest.Config) *nethost.Env {
	return &nethost.Env{Vars: man.Vars, Secrets: man.SecretValues()}
}

func provideBackground(lc fx.Lifecycle, zl *zap.Logger) *nethost.Background {
	ctx, cancel := context.WithCancel(context.Background())
	bg := nethost.NewBackground(ctx, zl)
	lc.Append(fx.Hook{
		OnStop: func(stopCtx context.Context) error {
			defer cancel()
			return bg.Wait(stopCtx)
		},
	})
	return bg
}

type routerDeps struct {
	fx.In

	Mod     *worker.Module
	Man     manifest.Config
	Env     *nethost.Env
	BG      *nethost.Background
	Metrics http.Handler `name:"metrics"`
	R       httpx.Router
	Log     *zap.Logger
}

func provideRouter(d routerDeps) http.Handler {
	r := d.R
	r.Use(chimd.RequestID, chimd.Recoverer, chimd.Heartbeat("/ping"))
	r.Get("/metrics", d.Metrics)
	r.HandleAll("/*", FetchHandler(d.Mod, d.Env, d.BG, d.Man.Dev.MaxBodyBytes, d.Man.Dev.RespondWithErrors, d.Log))
	return r.Mux()
}

// ---------- Lifecycle ----------

type serverDeps struct {
	fx.In
	Mod    *worker.Module
	Man    manifest.Config
	Env    *nethost.Env
	BG     *nethost.Background
	Logger *zap.Logger
	App    http.Handler `name:"app"`
}

func registerHooks(lc fx.Lifecycle, cfg Config, d serverDeps) {
	addr := envOr(cfg.ListenEnv, d.Man.Dev.Listen)
	cert := envOr(cfg.TLSCertEnv, d.Man.Dev.TLSCert)
	key := envOr(cfg.TLSKeyEnv, d.Man.Dev.TLSKey)

	srv := &http.Server{
		Addr:        addr,
		Handler:     d.App,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	useTLS := fileExists(cert) && fileExists(key)
	if useTLS {
		srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS13}
	}

	sched := newScheduler(d.Mod, d.Env, d.BG, d.Logger)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// start runs before the first request or trigger can reach the module
			d.Mod.Init()
			d.Logger.Info("worker initialized",
				zap.String("service", cfg.Service),
				zap.String("name", d.Man.Name),
				zap.Strings("exports", d.Mod.Exports()),
			)

			if err := sched.schedule(d.Man.Triggers.Crons); err != nil {
				return err
			}
			sched.start()

			if useTLS {
				d.Logger.Info("server starting (TLS)", zap.String("addr", addr), zap.String("cert", cert))
				go func() {
					if err := srv.ListenAndServeTLS(cert, key); err != nil && !errors.Is(err, http.ErrServerClosed) {
						d.Logger.Fatal("server failed", zap.Error(err))
					}
				}()
			} else {
				d.Logger.Info("server starting (PLAINTEXT)", zap.String("addr", addr))
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						d.Logger.Fatal("server failed", zap.Error(err))
					}
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Logger.Info("server stopping", zap.String("service", cfg.Service))
			sched.stop(ctx)
			return srv.Shutdown(ctx)
		},
	})
}

// ---------- tiny helpers ----------

func envOr(k, def string) string {
	if k == "" {
		return def
	}
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
