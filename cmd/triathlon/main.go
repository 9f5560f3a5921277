// Command triathlon serves the triathlon race simulator.
//
// Run with:
//
//	go run ./cmd/triathlon -addr :8080 -store file -data ./data
//
// Flags default to the TRIATHLON_* environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	triathlon "github.com/LuisLeon1705/Triatlon-Ujap"
	"github.com/LuisLeon1705/Triatlon-Ujap/invariants"
	"github.com/LuisLeon1705/Triatlon-Ujap/kv"
	"github.com/LuisLeon1705/Triatlon-Ujap/notify"
	"github.com/LuisLeon1705/Triatlon-Ujap/server"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type config struct {
	Addr        string
	Store       string
	DataDir     string
	RedisAddr   string
	DatabaseURL string
	NATSURL     string
	Seed        int64
	TimeZone    string
	Audit       bool
	Debug       bool
}

func loadConfig(args []string) (*config, error) {
	seed, err := strconv.ParseInt(getEnv("TRIATHLON_SEED", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TRIATHLON_SEED: %w", err)
	}

	cfg := &config{}
	fs := flag.NewFlagSet("triathlon", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", getEnv("TRIATHLON_ADDR", ":8080"), "HTTP listen address")
	fs.StringVar(&cfg.Store, "store", getEnv("TRIATHLON_STORE", "file"), "store backend: memory, file, redis or postgres")
	fs.StringVar(&cfg.DataDir, "data", getEnv("TRIATHLON_DATA_DIR", "data"), "directory of the file store")
	fs.StringVar(&cfg.RedisAddr, "redis", getEnv("REDIS_ADDR", "localhost:6379"), "Redis address")
	fs.StringVar(&cfg.DatabaseURL, "database-url", getEnv("DATABASE_URL", ""), "PostgreSQL connection string")
	fs.StringVar(&cfg.NATSURL, "nats", getEnv("NATS_URL", ""), "NATS URL; empty disables publishing")
	fs.Int64Var(&cfg.Seed, "seed", seed, "random seed; 0 seeds from the clock")
	fs.StringVar(&cfg.TimeZone, "tz", getEnv("TRIATHLON_TZ", "Local"), "time zone of displayed clock times")
	fs.BoolVar(&cfg.Audit, "audit", true, "check race invariants after every tick")
	fs.BoolVar(&cfg.Debug, "debug", false, "development logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("triathlon exited", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	gin.SetMode(gin.ReleaseMode)
	return zap.NewProduction()
}

func run(ctx context.Context, cfg *config, logger *zap.Logger) error {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return fmt.Errorf("invalid time zone %q: %w", cfg.TimeZone, err)
	}

	store, err := openStore(ctx, cfg, logger.Named("store"))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close store", zap.Error(err))
		}
	}()

	opts := []triathlon.ConfigOption{
		triathlon.WithStore(store),
		triathlon.WithLogger(logger.Named("simulation")),
		triathlon.WithLocation(loc),
	}
	if cfg.Seed != 0 {
		opts = append(opts, triathlon.WithSeed(cfg.Seed))
	}
	if cfg.Audit {
		opts = append(opts, triathlon.WithAuditor(invariants.NewDetector()))
	}
	if cfg.NATSURL != "" {
		pub, err := notify.Connect(notify.DefaultConfig(cfg.NATSURL), logger.Named("nats"))
		if err != nil {
			return err
		}
		defer pub.Close()
		opts = append(opts, triathlon.WithListener(pub))
	}

	simCfg, err := triathlon.NewConfig(opts...)
	if err != nil {
		return err
	}
	sim, err := triathlon.New(simCfg)
	if err != nil {
		return err
	}
	defer sim.Stop()

	srv := server.New(sim, logger.Named("http"))
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening",
			zap.String("addr", cfg.Addr),
			zap.String("store", cfg.Store),
			zap.String("tz", loc.String()))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		sim.Stop()
		srv.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config, logger *zap.Logger) (kv.Store, error) {
	switch cfg.Store {
	case "memory":
		return kv.NewMemory(), nil
	case "file":
		return kv.NewFile(cfg.DataDir)
	case "redis":
		return kv.NewRedis(ctx, kv.RedisConfig{Addr: cfg.RedisAddr}, logger)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("postgres store requires -database-url or DATABASE_URL")
		}
		return kv.NewPostgres(ctx, cfg.DatabaseURL, logger)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
