package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/nazeru/quickmart-checkout-go/internal/cart"
	"github.com/nazeru/quickmart-checkout-go/internal/checkout"
	"github.com/nazeru/quickmart-checkout-go/internal/checkout/payment"
	"github.com/nazeru/quickmart-checkout-go/internal/checkout/pricing"
	"github.com/nazeru/quickmart-checkout-go/internal/checkout/sequencer"
	"github.com/nazeru/quickmart-checkout-go/internal/config"
	"github.com/nazeru/quickmart-checkout-go/internal/httpapi"
	"github.com/nazeru/quickmart-checkout-go/internal/store"
	"github.com/nazeru/quickmart-checkout-go/internal/store/memory"
	"github.com/nazeru/quickmart-checkout-go/internal/store/postgres"
	"github.com/nazeru/quickmart-checkout-go/pkg/kafka"
	"github.com/nazeru/quickmart-checkout-go/pkg/metrics"
	"github.com/nazeru/quickmart-checkout-go/pkg/outbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatalf("config error: JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var (
		st    store.Store
		relay *outbox.Relay
	)
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect error: %v", err)
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatalf("db migrate error: %v", err)
		}
		pg := postgres.New(pool, cfg.KafkaTopic)
		if err := pg.SeedProducts(ctx, store.DemoCatalog()); err != nil {
			log.Fatalf("db seed error: %v", err)
		}
		st = pg

		kafkaClient := kafka.NewClient(cfg.KafkaBrokers)
		if kafkaClient.Enabled() {
			writer := kafkaClient.NewWriter("")
			defer writer.Close()
			relay = &outbox.Relay{
				Source:    outbox.PgSource{Q: pool},
				Publisher: kafka.OutboxPublisher{Writer: writer},
				Interval:  cfg.OutboxPoll,
				Service:   "checkout-service",
			}
		}
	default:
		mem := memory.New()
		mem.SeedDemoCatalog()
		st = mem
	}

	opts := []checkout.Option{checkout.WithMetrics(metrics.NewCheckoutMetrics(reg))}
	if cfg.Sequencer == config.SequencerRedis {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis ping error: %v", err)
		}
		opts = append(opts, checkout.WithCounter(sequencer.NewRedisCounter(rdb, "")))
	}

	if cfg.PaymentURL != "" {
		opts = append(opts, checkout.WithPaymentProcessor(payment.NewHTTPProcessor(cfg.PaymentURL, cfg.RequestTimeout)))
	}

	svc := checkout.NewService(st, pricing.NewEngine(cfg.TaxRate), opts...)
	api := httpapi.NewServer(cart.NewService(st), svc, httpapi.Config{
		JWTSecret:      cfg.JWTSecret,
		CheckoutRPS:    cfg.CheckoutRPS,
		CheckoutBurst:  cfg.CheckoutBurst,
		RequestTimeout: cfg.RequestTimeout,
	}, reg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("checkout-service listening on :%s (STORE=%s, SEQUENCER=%s, outbox relay=%v)", cfg.Port, cfg.Store, cfg.Sequencer, relay != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if relay != nil {
		g.Go(func() error {
			if err := relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("checkout-service error: %v", err)
	}
}
