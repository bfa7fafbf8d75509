package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-bakery-cart/internal/config"
	"github.com/ariefcatur/go-bakery-cart/internal/fulfillment"
	"github.com/ariefcatur/go-bakery-cart/internal/inventory"
	kafkax "github.com/ariefcatur/go-bakery-cart/internal/kafka"
	"github.com/ariefcatur/go-bakery-cart/internal/logger"
	"github.com/ariefcatur/go-bakery-cart/internal/metrics"
	"github.com/ariefcatur/go-bakery-cart/internal/orders"
	"github.com/ariefcatur/go-bakery-cart/internal/postgres"
	"github.com/ariefcatur/go-bakery-cart/internal/redisx"
)

// fulfillment applies staff status requests from Kafka through the same
// order state machine the HTTP API uses.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "json", "bakery-fulfillment").Fatal().Err(err).Msg("load config")
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName+"-fulfillment")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	// Redis
	rdb, err := redisx.New(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connect")
	}
	defer rdb.Close()

	prodCtx, stopProducer := context.WithCancel(context.Background())
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(prodCtx)

	m := metrics.New("bakery_fulfillment")
	svc := &fulfillment.Service{
		Store:     &postgres.Store{DB: db, Metrics: m, Log: log},
		Inventory: &inventory.Service{Metrics: m, Log: log},
		Events:    &kafkax.Publisher{Producer: prod, Service: cfg.ServiceName + "-fulfillment", Log: log},
		Metrics:   m,
		Log:       log,
	}
	cmds := &fulfillment.Commands{Service: svc, Dedup: redisx.NewDedup(rdb)}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.FulfillmentGroup, orders.TopicOrderStatusRequested, cfg.FulfillmentWorkers, log)
	log.Info().Str("group", cfg.FulfillmentGroup).Str("topic", orders.TopicOrderStatusRequested).
		Int("workers", cfg.FulfillmentWorkers).Msg("fulfillment consumer started")
	if err := cons.Start(ctx, cmds.HandleStatusRequested); err != nil {
		log.Error().Err(err).Msg("consumer exit")
	}

	log.Info().Msg("shutting down consumer...")
	stopProducer()
	prod.WaitClosed()
}
