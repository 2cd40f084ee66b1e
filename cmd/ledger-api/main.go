package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"balance-ledger/pkg/api"
	"balance-ledger/pkg/cache"
	"balance-ledger/pkg/cache/bloom"
	"balance-ledger/pkg/cache/memory"
	"balance-ledger/pkg/cache/redis"
	"balance-ledger/pkg/chain"
	"balance-ledger/pkg/config"
	"balance-ledger/pkg/ledger"
	"balance-ledger/pkg/logging"
	promMetrics "balance-ledger/pkg/metrics/prometheus"
	"balance-ledger/pkg/resilience"
	memstore "balance-ledger/pkg/store/memory"
	"balance-ledger/pkg/store/postgres"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	logger, err := logging.NewLoggerFromEnv()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsCollector := promMetrics.NewPrometheusCollector(cfg.MetricsNamespace)
	registry.MustRegister(metricsCollector)

	var checks []api.ServerOption

	// Store
	var store ledger.Store
	switch cfg.Store {
	case config.StorePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pg, err := postgres.Open(ctx, cfg.Postgres)
		cancel()
		if err != nil {
			logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
		defer pg.Close()
		store = pg
		checks = append(checks, api.WithHealthCheck("postgres", pg.Ping))
		logger.Info("PostgreSQL store initialized", zap.String("host", cfg.Postgres.Host))
	default:
		mem := memstore.New()
		if cfg.SeedDemo {
			seedDemo(mem)
		}
		store = mem
		logger.Warn("Using in-memory store; data is lost on restart")
	}

	// Transaction read cache: Memory (L1) -> Redis (L2, optional)
	layers := []cache.CacheLayer{
		memory.NewMemoryCache(memory.MemoryCacheConfig{
			Name:       "L1-Memory",
			MaxSize:    cfg.L1Size,
			DefaultTTL: cfg.CacheTTL,
		}),
	}
	resilientConfigs := []resilience.ResilientConfig{
		resilience.DefaultResilientConfig().WithTimeout(50 * time.Millisecond),
	}
	if cfg.RedisAddr != "" {
		redisConfig := redis.DefaultRedisCacheConfig()
		redisConfig.Addr = cfg.RedisAddr
		redisConfig.Password = cfg.RedisPassword
		redisConfig.DefaultTTL = cfg.CacheTTL

		redisCache, err := redis.NewRedisCache(redisConfig)
		if err != nil {
			// The cache is an accelerator; run without the shared tier.
			logger.Warn("Redis unavailable, continuing without L2", zap.Error(err))
		} else {
			layers = append(layers, bloom.NewBloomLayer(redisCache, cfg.BloomCapacity, 0.01))
			resilientConfigs = append(resilientConfigs, resilience.DefaultResilientConfig())
			checks = append(checks, api.WithHealthCheck("redis", redisCache.Ping))
		}
	}

	cacheChain, err := chain.NewWithConfig(chain.ChainConfig{
		ResilientConfigs: resilientConfigs,
		TTLStrategy:      chain.DecayingTTL{Factor: 0.5},
		WarmUpTTL:        cfg.CacheTTL,
		Metrics:          metricsCollector,
	}, layers...)
	if err != nil {
		logger.Fatal("Failed to create cache chain", zap.Error(err))
	}
	defer cacheChain.Close()
	logger.Info("Transaction cache initialized", zap.String("chain", cacheChain.String()))

	engine := ledger.NewEngine(store,
		ledger.WithCache(cacheChain, cfg.CacheTTL),
		ledger.WithMetrics(metricsCollector),
		ledger.WithLogger(logger.Named("ledger")),
	)

	serverConfig := api.DefaultServerConfig()
	serverConfig.Address = ":" + cfg.Port
	serverConfig.RequestTimeout = cfg.RequestTimeout
	serverConfig.Registry = registry

	server := api.NewServer(engine, serverConfig, append(checks, api.WithLogger(logger.Named("api")))...)
	if err := server.Start(); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
	logger.Info("Server stopped gracefully")
}

// seedDemo creates user 12 with account 1000000012 holding 10000.
func seedDemo(s *memstore.Store) {
	s.PutUser(ledger.User{ID: 12, Name: "demo"})
	s.PutAccount(ledger.Account{
		UserID:        12,
		AccountNumber: "1000000012",
		Balance:       10000,
		Status:        ledger.AccountInUse,
		RegisteredAt:  time.Now(),
	})
}
