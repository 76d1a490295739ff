package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/maltehedderich/toolgate-go/internal/config"
	"github.com/maltehedderich/toolgate-go/internal/health"
	"github.com/maltehedderich/toolgate-go/internal/kvstore"
	"github.com/maltehedderich/toolgate-go/internal/logger"
	"github.com/maltehedderich/toolgate-go/internal/metrics"
	"github.com/maltehedderich/toolgate-go/internal/proxy"
	"github.com/maltehedderich/toolgate-go/internal/ratelimit"
	"github.com/maltehedderich/toolgate-go/internal/server"
	"github.com/maltehedderich/toolgate-go/internal/tracing"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	version    = "1.0.0"
	buildTime  = "unknown"
	gitCommit  = "unknown"
)

func main() {
	flag.Parse()

	fmt.Printf("toolgate v%s (commit: %s, built: %s)\n", version, gitCommit, buildTime)

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}

	var logOutput *os.File
	switch cfg.Logging.Output {
	case "stdout":
		logOutput = os.Stdout
	case "stderr":
		logOutput = os.Stderr
	default:
		logOutput, err = os.OpenFile(cfg.Logging.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer logOutput.Close()
	}

	logger.Init(logLevel, cfg.Logging.Format, logOutput)

	log := logger.Get().WithComponent("main")
	log.Info("starting toolgate", logger.Fields{
		"version":    version,
		"git_commit": gitCommit,
		"build_time": buildTime,
	})

	for component, levelStr := range cfg.Logging.ComponentLevels {
		level, err := logger.ParseLevel(levelStr)
		if err != nil {
			log.Warn("invalid component log level", logger.Fields{
				"component": component,
				"level":     levelStr,
				"error":     err.Error(),
			})
			continue
		}
		logger.Get().SetComponentLevel(component, level)
	}

	metrics.Register()

	if err := tracing.Init(&tracing.Config{
		Enabled:        cfg.Observability.TracingEnabled,
		Endpoint:       cfg.Observability.TracingEndpoint,
		ServiceName:    "toolgate",
		ServiceVersion: version,
		Environment:    os.Getenv("TOOLGATE_ENVIRONMENT"),
		SampleRate:     cfg.Observability.TracingSampleRate,
	}); err != nil {
		log.Error("failed to initialize tracing", logger.Fields{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = tracing.Shutdown(ctx)
	}()

	store, err := buildStore(cfg)
	if err != nil {
		log.Error("failed to create key-value store", logger.Fields{
			"backend": cfg.RateLimit.Backend,
			"error":   err.Error(),
		})
		os.Exit(1)
	}

	costs, err := cfg.CostTable()
	if err != nil {
		log.Error("invalid tool cost configuration", logger.Fields{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	limiter := ratelimit.New(store, ratelimit.Options{
		Limits:           cfg.Limits(),
		Costs:            costs,
		BlockDuration:    cfg.RateLimit.BlockDuration,
		MaxBlockDuration: cfg.RateLimit.MaxBlockDuration,
		StoreTimeout:     cfg.RateLimit.StoreTimeout,
	})
	defer limiter.Close()

	p, err := proxy.New(cfg.Upstream.URL, &proxy.Config{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		Timeout:             cfg.Upstream.Timeout,
		MaxRetries:          3,
		RetryDelay:          100 * time.Millisecond,
	})
	if err != nil {
		log.Error("failed to create upstream proxy", logger.Fields{
			"upstream": cfg.Upstream.URL,
			"error":    err.Error(),
		})
		os.Exit(1)
	}

	healthMgr := health.NewManager()
	healthMgr.Register("config", health.ConfigChecker(func() bool {
		return config.Get() != nil
	}))
	healthMgr.Register("store", health.StoreChecker(limiter.Ping, 2*time.Second))

	srv := server.New(cfg, limiter, p, healthMgr)

	log.Info("configuration loaded successfully", logger.Fields{
		"http_port": cfg.Server.HTTPPort,
		"rpc_path":  cfg.Server.RPCPath,
		"backend":   cfg.RateLimit.Backend,
		"upstream":  cfg.Upstream.URL,
	})

	if err := srv.Start(); err != nil {
		log.Error("server error", logger.Fields{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	log.Info("toolgate stopped")
}

// buildStore creates the configured store backend, wrapped in a circuit
// breaker so a dead backend trips fast instead of timing out every call.
func buildStore(cfg *config.Config) (kvstore.Store, error) {
	var (
		inner kvstore.Store
		err   error
	)

	switch cfg.RateLimit.Backend {
	case "memory":
		inner = kvstore.NewMemoryStore()
	case "redis":
		inner, err = kvstore.NewRedisStore(kvstore.RedisConfig{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
	case "dynamodb":
		inner, err = kvstore.NewDynamoDBStore(cfg.RateLimit.DynamoDBTable, cfg.RateLimit.DynamoDBRegion)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.RateLimit.Backend)
	}
	if err != nil {
		return nil, err
	}

	// The memory backend cannot fail; skip the breaker there.
	if cfg.RateLimit.Backend == "memory" {
		return inner, nil
	}
	return kvstore.NewBreakerStore(inner, nil), nil
}
