package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	kafkago "github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/nazeru/quickmart-checkout-go/internal/config"
	"github.com/nazeru/quickmart-checkout-go/internal/notify"
	"github.com/nazeru/quickmart-checkout-go/internal/store/postgres"
	"github.com/nazeru/quickmart-checkout-go/pkg/contracts"
	"github.com/nazeru/quickmart-checkout-go/pkg/kafka"
	"github.com/nazeru/quickmart-checkout-go/pkg/logging"
	"github.com/nazeru/quickmart-checkout-go/pkg/metrics"
)

const (
	serviceName = "notification-service"
	groupID     = "notification-service"

	notificationsSuffix = ".notifications"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.Store != config.StorePostgres {
		log.Fatalf("config error: notification-service needs DATABASE_URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatalf("db migrate error: %v", err)
	}

	reg := prometheus.NewRegistry()
	srvMetrics := metrics.NewServerMetrics(reg, "notification_service")
	inbox := notify.NewStore(pool, serviceName)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if err := pool.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "db_error"})
			srvMetrics.Observe("health", "503", start)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		srvMetrics.Observe("health", "200", start)
	})
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	kafkaClient := kafka.NewClient(cfg.KafkaBrokers)
	if kafkaClient.Enabled() {
		g.Go(func() error {
			emitted := kafkaClient.NewWriter(cfg.KafkaTopic + notificationsSuffix)
			defer emitted.Close()
			consumeEvents(gctx, kafkaClient, cfg.KafkaTopic, inbox, emitted)
			return nil
		})
	}
	g.Go(func() error {
		log.Printf("notification-service listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("notification-service error: %v", err)
	}
}

func consumeEvents(ctx context.Context, client *kafka.Client, topic string, inbox *notify.Store, emitted *kafkago.Writer) {
	reader := client.NewReader(topic, groupID)
	defer reader.Close()
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("kafka read error: %v", err)
			time.Sleep(2 * time.Second)
			continue
		}
		var evt contracts.Event
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			log.Printf("event decode error: %v", err)
			continue
		}
		if evt.EventID == "" {
			continue
		}
		dup, err := inbox.Handle(ctx, evt)
		if err != nil {
			logging.Log(logging.Fields{Service: serviceName, EventID: evt.EventID, OrderNumber: evt.OrderNumber, Step: evt.Type, Status: "error", Error: err.Error()})
			continue
		}
		status := "stored"
		if dup {
			status = "duplicate"
		} else if n, ok := notify.Compose(evt); ok {
			out := contracts.NewEvent(contracts.EventNotificationEmitted, evt.OrderID, evt.OrderNumber, evt.UserID, map[string]any{
				"kind":    n.Kind,
				"message": n.Message,
				"source":  evt.EventID,
			})
			if err := kafka.PublishJSON(ctx, emitted, out.OrderNumber, out); err != nil {
				log.Printf("kafka publish error: %v", err)
			} else {
				status = "emitted"
			}
		}
		logging.Log(logging.Fields{Service: serviceName, UserID: evt.UserID, OrderNumber: evt.OrderNumber, EventID: evt.EventID, Step: evt.Type, Status: status})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
