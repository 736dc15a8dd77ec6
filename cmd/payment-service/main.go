package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nazeru/quickmart-checkout-go/internal/checkout/payment"
	"github.com/nazeru/quickmart-checkout-go/pkg/logging"
	"github.com/nazeru/quickmart-checkout-go/pkg/metrics"
)

const serviceName = "payment-service"

func main() {
	port := getenv("PORT", "8080")

	reg := prometheus.NewRegistry()
	srvMetrics := metrics.NewServerMetrics(reg, "payment_service")
	payments := payment.Handler(payment.NewSimulator(nil))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.HandleFunc(payment.Path, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		payments.ServeHTTP(rec, r)
		status := "approved"
		if rec.status != http.StatusOK {
			status = "declined"
		}
		srvMetrics.Observe("payments", strconv.Itoa(rec.status), start)
		logging.Log(logging.Fields{Service: serviceName, Step: "process_payment", Status: status, DurationMS: logging.Since(start)})
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Printf("payment-service listening on :%s", port)
	log.Fatal(srv.ListenAndServe())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
