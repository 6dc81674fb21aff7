package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ironsheep/poster-tint/internal/config"
	"github.com/ironsheep/poster-tint/internal/httpapi"
	"github.com/ironsheep/poster-tint/internal/imaging"
	"github.com/ironsheep/poster-tint/internal/server"
	"github.com/ironsheep/poster-tint/internal/tint"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func usage() {
	fmt.Println("poster-tint - accent colors for poster images")
	fmt.Println()
	fmt.Println("Usage: poster-tint [options] [mode] [args]")
	fmt.Println()
	fmt.Println("Modes:")
	fmt.Println("  (none)             Serve MCP over stdin/stdout")
	fmt.Println("  http               Serve the HTTP API")
	fmt.Println("  extract URL...     Print URL<TAB>color for each URL")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config PATH      Config file (default $XDG_CONFIG_HOME/poster-tint/config.toml)")
	fmt.Println("  --version, -v      Print version information")
	fmt.Println("  --help, -h         Print this help message")
	fmt.Println()
	fmt.Println("Environment variables (also read from .env):")
	fmt.Println("  POSTER_TINT_LOG_LEVEL=debug     Enable debug logging")
	fmt.Println("  POSTER_TINT_STORE=redis         Share the color cache through Redis")
	fmt.Println("  POSTER_TINT_REDIS_ADDR=host:port")
	fmt.Println("  POSTER_TINT_BASE_URL=https://...  Resolve relative poster URLs")
}

func main() {
	args := os.Args[1:]
	configPath := ""

	// Handle flags; they must precede the mode
flags:
	for len(args) > 0 {
		switch args[0] {
		case "--version", "-v", "version":
			fmt.Printf("poster-tint %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			usage()
			return
		case "--config":
			if len(args) < 2 {
				fmt.Fprintln(os.Stderr, "--config requires a path")
				os.Exit(2)
			}
			configPath = args[1]
			args = args[2:]
		default:
			break flags
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "poster-tint: %v\n", err)
		os.Exit(1)
	}

	// Logging goes to stderr (stdout is for MCP protocol)
	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "poster-tint: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Debug("starting poster-tint",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", GitCommit))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer app.Close()

	mode := ""
	if len(args) > 0 {
		mode = args[0]
		args = args[1:]
	}

	switch mode {
	case "", "mcp":
		srv := server.New(app.svc, imaging.NewImageCache(app.loader, cfg.Extract.ImageCacheSize), server.Options{
			MaxDimension: cfg.Extract.MaxDimension,
			Version:      Version,
			Logger:       logger,
		})
		if err := srv.Run(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal("server error", zap.Error(err))
		}
	case "http":
		runHTTP(ctx, cfg, app, logger)
	case "extract":
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "extract requires at least one URL")
			os.Exit(2)
		}
		colors := app.svc.GetColors(ctx, args)
		for _, u := range args {
			if c, ok := colors[u]; ok {
				fmt.Printf("%s\t%s\n", u, c)
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n\n", mode)
		usage()
		os.Exit(2)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}

// app holds the wired components shared by every mode.
type app struct {
	loader   *imaging.HTTPLoader
	svc      *tint.Service
	registry *prometheus.Registry
	redis    *tint.RedisStore
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	loader, err := imaging.NewHTTPLoader(imaging.LoaderOptions{
		Timeout: cfg.Extract.Timeout,
		BaseURL: cfg.Extract.BaseURL,
		RootDir: cfg.Extract.RootDir,
	})
	if err != nil {
		return nil, err
	}

	a := &app{loader: loader, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := tint.NewMetrics(a.registry)

	var store tint.Store
	switch cfg.Cache.Store {
	case config.StoreRedis:
		a.redis = tint.NewRedisStore(cfg.Redis.Addr, cfg.Cache.Namespace)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := a.redis.Ping(pingCtx); err != nil {
			// lookups still work from memory; writes are retried on every Put
			logger.Warn("redis unreachable, colors will not be shared",
				zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		cancel()
		store = a.redis
	case config.StoreFile:
		fs, err := tint.NewFileStore(cfg.Cache.Dir, cfg.Cache.Namespace)
		if err != nil {
			return nil, err
		}
		logger.Debug("using file store", zap.String("path", fs.Path()))
		store = fs
	default:
		store = tint.NewMemoryStore()
	}

	cache := tint.NewCache(store, tint.CacheOptions{
		Capacity:  cfg.Cache.Capacity,
		TTL:       cfg.Cache.TTL,
		Namespace: cfg.Cache.Namespace,
		Logger:    logger,
		Metrics:   metrics,
	})
	a.svc = tint.NewService(cache, imaging.NewAnalyzer(loader, cfg.Extract.MaxDimension), tint.Options{
		Concurrency: cfg.Cache.Concurrency,
		Logger:      logger,
		Metrics:     metrics,
	})
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
}

func runHTTP(ctx context.Context, cfg *config.Config, a *app, logger *zap.Logger) {
	opts := httpapi.Options{
		Addr:     cfg.HTTP.Addr,
		Gatherer: a.registry,
		Logger:   logger,
	}
	if a.redis != nil {
		opts.Store = a.redis
	}
	srv := httpapi.NewServer(a.svc, opts)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	logger.Info("http server started", zap.String("addr", cfg.HTTP.Addr))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("could not start server", zap.Error(err))
		}
		return
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exiting")
}
