package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/yndnr/stablemem/internal/infra/buildinfo"
	"github.com/yndnr/stablemem/internal/infra/confloader"
	"github.com/yndnr/stablemem/internal/infra/shutdown"
	"github.com/yndnr/stablemem/internal/infra/tlsroots"
	"github.com/yndnr/stablemem/internal/server/config"
	"github.com/yndnr/stablemem/internal/server/httpserver"
	"github.com/yndnr/stablemem/internal/server/localserver"
	"github.com/yndnr/stablemem/internal/server/redisserver"
	"github.com/yndnr/stablemem/internal/storage"
	"github.com/yndnr/stablemem/internal/telemetry/logger"
	"github.com/yndnr/stablemem/internal/telemetry/metric"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	config.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if *showVersion {
		fmt.Printf("stablemem-server %s\n", buildinfo.String())
		return nil
	}

	loader, cfg, err := loadConfig(*configFile, config.FlagOverrides(flag.CommandLine))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(log)

	info := buildinfo.Get()
	log.Info("starting stablemem-server",
		"version", info.Version,
		"commit", info.Commit,
		"go", info.GoVersion,
		"config", *configFile)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := metric.Global()

	engineCfg := cfg.Storage.EngineConfig(log)
	engineCfg.Metrics = metrics
	engine, err := storage.New(engineCfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	if err := engine.Recover(ctx); err != nil {
		engine.Close()
		return fmt.Errorf("storage recovery: %w", err)
	}

	shutdownHandler := shutdown.NewHandler(shutdownTimeout)

	// Hooks run in reverse order: listeners stop before the engine closes.
	shutdownHandler.OnShutdown(func(context.Context) error {
		log.Info("closing storage engine")
		return engine.Close()
	})
	shutdownHandler.OnShutdown(func(context.Context) error {
		cancel()
		return nil
	})

	routerCfg := httpserver.DefaultRouterConfig()
	routerCfg.Engine = engine
	routerCfg.Logger = log
	routerCfg.Metrics = metrics
	routerCfg.APIKey = cfg.Security.APIKey
	routerCfg.AdminKey = cfg.Security.AdminKey
	routerCfg.AdminAllowList = cfg.Server.HTTP.AdminAllowList
	routerCfg.MetricsAuthRequired = cfg.Server.HTTP.MetricsAuthRequired
	routerCfg.CORSAllowedOrigins = cfg.Server.HTTP.CORSAllowedOrigins
	routerCfg.RateLimit = cfg.Server.HTTP.RateLimit
	routerCfg.RateBurst = cfg.Server.HTTP.RateBurst
	routerCfg.EnableAudit = cfg.Server.HTTP.EnableAudit

	httpServer := httpserver.New(cfg.Server.HTTP.Addr, httpserver.NewRouter(routerCfg), httpserver.Options{
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
	})
	httpTLS, err := serverTLS(ctx, cfg.Server.HTTP.TLSCertFile, cfg.Server.HTTP.TLSKeyFile, log)
	if err != nil {
		shutdownHandler.Trigger()
		return joinShutdown(shutdownHandler, fmt.Errorf("http tls: %w", err))
	}

	if cfg.Server.Redis.Enabled {
		redisTLS, err := serverTLS(ctx, cfg.Server.Redis.TLSCertFile, cfg.Server.Redis.TLSKeyFile, log)
		if err != nil {
			shutdownHandler.Trigger()
			return joinShutdown(shutdownHandler, fmt.Errorf("redis tls: %w", err))
		}

		redisCfg := redisserver.DefaultConfig()
		redisCfg.Address = cfg.Server.Redis.Addr
		redisCfg.TLSConfig = redisTLS
		redisCfg.APIKey = cfg.Security.APIKey
		redisCfg.RateLimit = cfg.Server.HTTP.RateLimit
		redisCfg.RateBurst = cfg.Server.HTTP.RateBurst
		redisCfg.Metrics = metrics

		redisServer := redisserver.New(redisCfg, engine, log)
		if err := redisServer.Start(ctx); err != nil {
			shutdownHandler.Trigger()
			return joinShutdown(shutdownHandler, fmt.Errorf("start redis server: %w", err))
		}
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			log.Info("shutting down redis server")
			return redisServer.Shutdown(ctx)
		})
	}

	if cfg.Server.Local.Enabled {
		// The socket is guarded by file permissions instead of keys.
		localCfg := *routerCfg
		localCfg.APIKey = ""
		localCfg.AdminKey = ""
		localCfg.AdminAllowList = nil
		localCfg.RateLimit = 0
		localServer := localserver.New(cfg.Server.Local.SocketPath, httpserver.NewRouter(&localCfg), log)
		if err := localServer.Listen(); err != nil {
			shutdownHandler.Trigger()
			return joinShutdown(shutdownHandler, fmt.Errorf("local socket: %w", err))
		}
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			log.Info("closing local admin socket")
			return localServer.Shutdown(ctx)
		})
		go func() {
			if err := localServer.Serve(); err != nil {
				log.Error("local admin socket error", "error", err)
			}
		}()
	}

	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return httpServer.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", cfg.Server.HTTP.Addr, "tls", httpTLS != nil)

		var err error
		if httpTLS != nil {
			err = httpServer.ListenAndServeTLS(httpTLS)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil {
			log.Error("HTTP server error", "error", err)
			shutdownHandler.Trigger()
		}
	}()

	reload := func() {
		next := config.Default()
		if err := loader.Load(next); err != nil {
			log.Error("config reload failed", "error", err)
			return
		}
		if err := config.Verify(next); err != nil {
			log.Error("reloaded config is invalid", "error", err)
			return
		}
		if err := logger.SetLevel(next.Log.Level); err != nil {
			log.Error("apply log level", "error", err)
			return
		}
		log.Info("configuration reloaded", "log_level", logger.Level())
	}
	shutdownHandler.OnReload(reload)

	if path := loader.FilePath(); path != "" {
		watcher := confloader.NewWatcher(path, reload, confloader.WithWatcherLogger(log))
		go func() {
			if err := watcher.Run(ctx); err != nil {
				log.Warn("config watcher unavailable", "error", err)
			}
		}()
	}

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig layers the config file, STABLEMEM_ environment variables and
// command-line overrides over the defaults.
func loadConfig(configFile string, overrides map[string]any) (*confloader.Loader, *config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{
		confloader.WithEnvPrefix(confloader.DefaultEnvPrefix),
		confloader.WithOverrides(overrides),
	}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	loader := confloader.NewLoader(opts...)

	if err := loader.Load(cfg); err != nil {
		return nil, nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return loader, cfg, nil
}

// serverTLS loads a reloading key pair, or returns nil when TLS is off.
func serverTLS(ctx context.Context, certFile, keyFile string, log *slog.Logger) (*tls.Config, error) {
	if certFile == "" {
		return nil, nil
	}
	kp, err := tlsroots.LoadKeyPair(certFile, keyFile, tlsroots.WithLogger(log))
	if err != nil {
		return nil, err
	}
	go func() {
		if err := kp.Watch(ctx); err != nil {
			log.Warn("certificate watcher stopped", "cert_file", certFile, "error", err)
		}
	}()
	return kp.ServerConfig(), nil
}

// joinShutdown waits for the already triggered shutdown and reports cause.
func joinShutdown(h *shutdown.Handler, cause error) error {
	if err := h.Wait(); err != nil {
		return fmt.Errorf("%w (shutdown: %v)", cause, err)
	}
	return cause
}
