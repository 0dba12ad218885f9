package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"

	"github.com/xela07ax/gridrules/internal/api"
	"github.com/xela07ax/gridrules/internal/audit"
	"github.com/xela07ax/gridrules/internal/domain"
	"github.com/xela07ax/gridrules/internal/engine"
	"github.com/xela07ax/gridrules/internal/infra"
	"github.com/xela07ax/gridrules/internal/infra/auth"
	"github.com/xela07ax/gridrules/internal/repository/postgres"
	"github.com/xela07ax/gridrules/internal/rules"
	"github.com/xela07ax/gridrules/internal/state"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ./config.yaml or ./configs/config.yaml)")
	flag.Parse()

	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("gridrules stopped with error", zap.Error(err))
	}
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Гейт легальности: ошибка конфигурации правил фатальна
	registry := rules.DefaultRegistry()
	for name, expr := range cfg.Rules.Expressions {
		if err := registry.RegisterExpression(name, expr); err != nil {
			return err
		}
	}
	gate, err := registry.Build(cfg.Rules.Strategy)
	if err != nil {
		return err
	}
	logger.Info("rules loaded", zap.String("active", gate.Name()), zap.Strings("available", registry.Names()))

	// 2. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	// 3. Снимки окружений (Redis)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	pingCancel()
	if err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}

	store := state.NewStore(rdb, state.Options{
		Retries:         cfg.Engine.StoreRetries,
		CBMaxRequests:   cfg.Engine.CBMaxRequests,
		CBInterval:      cfg.Engine.CBInterval,
		CBTimeout:       cfg.Engine.CBTimeout,
		CBMaxFailures:   cfg.Engine.CBMaxFailures,
		OnBreakerChange: metrics.BreakerObserver("state-store"),
	}, logger)
	go store.Listen(appCtx, state.RedisSubscriber{Client: rdb})

	// 4. Журнал вердиктов (PostgreSQL опционален)
	var (
		storage  audit.Storage = audit.NopStorage{Logger: logger}
		verdicts api.VerdictReader
	)
	if cfg.Database.URL != "" {
		db, err := postgres.Open(cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := postgres.NewVerdictRepo(db)
		ctx, c := context.WithTimeout(appCtx, 5*time.Second)
		err = repo.Ping(ctx)
		if err == nil {
			err = repo.Migrate(ctx)
		}
		c()
		if err != nil {
			return fmt.Errorf("database unreachable: %w", err)
		}
		storage, verdicts = repo, repo
	} else {
		logger.Warn("database.url is empty: verdicts are not persisted")
	}

	journal := audit.NewJournal(storage, audit.Options{
		BufferSize:    cfg.Engine.JournalBufferSize,
		BatchSize:     cfg.Engine.JournalBatchSize,
		FlushInterval: cfg.Engine.JournalFlushInterval,
	}, logger)
	journal.Start()
	defer journal.Stop()

	// 5. Авторизация
	var validator auth.TokenValidator
	if len(cfg.Auth.PublicKey) > 0 {
		pub, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			return err
		}
		validator = auth.NewBaseValidator(pub)
	} else {
		logger.Warn("auth public key is not configured: API is open")
	}

	// 6. Пайплайн проверки
	var limiter *rate.Limiter
	if cfg.Engine.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Engine.RateLimit), cfg.Engine.RateBurst)
	}
	arbiter := engine.NewArbiter(gate, store, journal, limiter, metrics, logger)

	// 7. Транспорты
	httpSrv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: api.NewServer(api.Deps{
			Arbiter:   arbiter,
			States:    store,
			Verdicts:  verdicts,
			Validator: validator,
			RuleSets:  registry.Names(),
		}, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}

	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(engine.UnaryAuthInterceptor(validator, domain.ScopeLegalityCheck)))
	engine.RegisterLegalityServer(grpcSrv, engine.NewGRPCLegalityServer(arbiter))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		return fmt.Errorf("failed to listen gRPC: %w", err)
	}

	errCh := make(chan error, 3)
	go func() {
		logger.Info("gRPC server started", zap.String("addr", lis.Addr().String()))
		errCh <- grpcSrv.Serve(lis)
	}()
	go func() {
		logger.Info("HTTP server started", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 8. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-stop:
		logger.Info("gridrules stopping...")
	case runErr = <-errCh:
		logger.Error("server failed", zap.Error(runErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	_ = metricsSrv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	cancel()

	logger.Info("gridrules exited properly")
	return runErr
}
