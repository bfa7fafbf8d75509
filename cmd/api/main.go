package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-bakery-cart/internal/cart"
	"github.com/ariefcatur/go-bakery-cart/internal/checkout"
	"github.com/ariefcatur/go-bakery-cart/internal/config"
	"github.com/ariefcatur/go-bakery-cart/internal/fulfillment"
	"github.com/ariefcatur/go-bakery-cart/internal/httpx"
	"github.com/ariefcatur/go-bakery-cart/internal/inventory"
	kafkax "github.com/ariefcatur/go-bakery-cart/internal/kafka"
	"github.com/ariefcatur/go-bakery-cart/internal/logger"
	"github.com/ariefcatur/go-bakery-cart/internal/metrics"
	"github.com/ariefcatur/go-bakery-cart/internal/postgres"
	"github.com/ariefcatur/go-bakery-cart/internal/redisx"
	"github.com/ariefcatur/go-bakery-cart/internal/reservation"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "json", "bakery-cart").Fatal().Err(err).Msg("load config")
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
		log.Info().Msg("migrations applied")
	}

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

	// Kafka producer; publishing never blocks a request
	prodCtx, stopProducer := context.WithCancel(context.Background())
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(prodCtx)
	events := &kafkax.Publisher{Producer: prod, Service: cfg.ServiceName, Log: log}

	m := metrics.New("bakery")
	st := &postgres.Store{DB: db, Metrics: m, Log: log}
	inv := &inventory.Service{Metrics: m, Log: log}
	ledger := &reservation.Ledger{Inventory: inv, TTL: cfg.ReservationTimeout, Metrics: m, Log: log}
	cartCache := redisx.NewCartCache(rdb, log)

	cartSvc := &cart.Service{Store: st, Ledger: ledger, Cache: cartCache, Log: log}
	checkoutSvc := &checkout.Service{
		Store:   st,
		Ledger:  ledger,
		Cache:   cartCache,
		Idem:    redisx.NewCheckoutKeys(rdb),
		Events:  events,
		Metrics: m,
		Log:     log,
	}
	fulfillSvc := &fulfillment.Service{Store: st, Inventory: inv, Events: events, Metrics: m, Log: log}
	sweeper := &reservation.Sweeper{
		Store:     st,
		Ledger:    ledger,
		Interval:  cfg.SweepInterval,
		BatchSize: cfg.SweepBatchSize,
		Lock:      redisx.NewLocker(rdb),
		Cache:     cartCache,
		Events:    events,
		Metrics:   m,
		Log:       log,
	}

	router := httpx.NewRouter(log, m.Handler(), map[string]httpx.HealthFunc{
		"postgres": db.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})
	(&httpx.ProductsHandler{Store: st}).Register(router)
	(&httpx.CartHandler{Cart: cartSvc, Checkout: checkoutSvc}).Register(router)
	(&httpx.OrdersHandler{Fulfillment: fulfillSvc}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	werr := g.Wait()
	stopProducer()
	prod.WaitClosed()
	if werr != nil {
		log.Error().Err(werr).Msg("exit with error")
		os.Exit(1)
	}
}
