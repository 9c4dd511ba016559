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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-gastank/internal/api"
	"github.com/0gfoundation/0g-gastank/internal/config"
	"github.com/0gfoundation/0g-gastank/internal/events"
	"github.com/0gfoundation/0g-gastank/internal/evmhost"
	"github.com/0gfoundation/0g-gastank/internal/metrics"
	"github.com/0gfoundation/0g-gastank/internal/outbox"
	"github.com/0gfoundation/0g-gastank/internal/ratelimit"
	"github.com/0gfoundation/0g-gastank/internal/telemetry"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Tracing ───────────────────────────────────────────────────────────────
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	}

	// ── Redis (auth nonces, state, settlement outbox) ─────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met := metrics.New(reg)

	// ── Forwarded-call host ───────────────────────────────────────────────────
	host, err := evmhost.New(log)
	if err != nil {
		log.Fatal("evm host init failed", zap.Error(err))
	}
	if err := deployContracts(host, cfg.EVM.Contracts); err != nil {
		log.Fatal("evm contracts", zap.Error(err))
	}

	// ── Pricing ───────────────────────────────────────────────────────────────
	pricer, closePricer, err := newPricer(ctx, cfg)
	if err != nil {
		log.Fatal("pricer init failed", zap.Error(err))
	}
	defer closePricer()

	// ── Settlement sinks ──────────────────────────────────────────────────────
	sink := events.Multi{events.NewLogSink(log)}
	var kafkaSink *events.KafkaSink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err = events.NewKafkaSink(events.KafkaConfig{
			Brokers:     cfg.Kafka.Brokers,
			TopicPrefix: cfg.Kafka.TopicPrefix,
		})
		if err != nil {
			log.Fatal("kafka sink init failed", zap.Error(err))
		}
		defer kafkaSink.Close() //nolint:errcheck
		sink = append(sink, events.NewRedisSink(rdb))
	}

	// ── Stores + tanks ────────────────────────────────────────────────────────
	stores, err := newStores(cfg, rdb)
	if err != nil {
		log.Fatal("state store init failed", zap.Error(err))
	}
	defer stores.Close() //nolint:errcheck

	dir, err := buildDirectory(ctx, cfg, deps{
		stores:  stores,
		host:    host,
		pricer:  pricer,
		sink:    sink,
		metrics: met,
		log:     log,
	})
	if err != nil {
		log.Fatal("tank init failed", zap.Error(err))
	}

	// ── Outbox forwarders (Redis list → Kafka) ────────────────────────────────
	if kafkaSink != nil {
		for _, addr := range dir.List() {
			go outbox.NewForwarder(rdb, addr, kafkaSink, log).Run(ctx)
		}
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := gin.New()
	r.Use(gin.Recovery())
	limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)
	api.NewHandler(dir, rdb, limiter, reg, log).Register(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Info("HTTP server starting",
			zap.Int("port", cfg.Server.Port),
			zap.Int("instances", len(dir.List())),
			zap.String("store", cfg.Store.Driver),
			zap.String("pricing", cfg.Pricing.Mode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	if shutdownTracer != nil {
		if err := shutdownTracer(shutdownCtx); err != nil {
			log.Error("tracer shutdown error", zap.Error(err))
		}
	}
	log.Info("shutdown complete")
}
