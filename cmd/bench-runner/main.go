package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nazeru/quickmart-checkout-go/pkg/apiclient"
)

type benchResult struct {
	Timestamp        string         `json:"timestamp"`
	BaseURL          string         `json:"base_url"`
	ProductID        int64          `json:"product_id"`
	PaymentMethod    string         `json:"payment_method"`
	Shoppers         int            `json:"shoppers"`
	Concurrency      int            `json:"concurrency"`
	InitialStock     int            `json:"initial_stock"`
	Orders           int            `json:"orders"`
	Rejected         int            `json:"rejected"`
	Errors           int            `json:"errors"`
	DuplicateNumbers int            `json:"duplicate_order_numbers"`
	Oversold         bool           `json:"oversold"`
	DurationSeconds  float64        `json:"duration_seconds"`
	AvgLatencyMs     float64        `json:"avg_latency_ms"`
	MinLatencyMs     float64        `json:"min_latency_ms"`
	MaxLatencyMs     float64        `json:"max_latency_ms"`
	P50LatencyMs     float64        `json:"p50_latency_ms"`
	P90LatencyMs     float64        `json:"p90_latency_ms"`
	P95LatencyMs     float64        `json:"p95_latency_ms"`
	P99LatencyMs     float64        `json:"p99_latency_ms"`
	ThroughputRPS    float64        `json:"throughput_rps"`
	StatusCounts     map[string]int `json:"status_counts"`
	Rejections       map[string]int `json:"rejections"`
	FirstError       string         `json:"first_error"`
}

type metrics struct {
	mu           sync.Mutex
	orders       int
	rejected     int
	errors       int
	latenciesMs  []float64
	numbers      map[string]int
	statusCounts map[string]int
	rejections   map[string]int
	firstError   string
}

func newMetrics() *metrics {
	return &metrics{
		numbers:      make(map[string]int),
		statusCounts: make(map[string]int),
		rejections:   make(map[string]int),
	}
}

func (m *metrics) record(latency time.Duration, resp apiclient.Response, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.errors++
		if m.firstError == "" {
			m.firstError = err.Error()
		}
		return
	}
	m.statusCounts[strconv.Itoa(resp.StatusCode)]++
	m.latenciesMs = append(m.latenciesMs, float64(latency.Microseconds())/1000)
	switch {
	case resp.OK():
		m.orders++
		if o, err := apiclient.DecodeOrder(resp); err == nil {
			m.numbers[o.OrderNumber]++
		}
	case resp.StatusCode < 500:
		m.rejected++
		m.rejections[resp.Message()]++
	default:
		m.errors++
		if m.firstError == "" {
			m.firstError = fmt.Sprintf("status %d: %s", resp.StatusCode, resp.Message())
		}
	}
}

func (m *metrics) duplicates() int {
	n := 0
	for _, c := range m.numbers {
		if c > 1 {
			n += c - 1
		}
	}
	return n
}

func main() {
	baseURL := flag.String("base-url", getenv("CHECKOUT_BASE_URL", "http://localhost:8080"), "checkout-service base URL")
	secret := flag.String("jwt-secret", getenv("JWT_SECRET", ""), "HS256 secret shared with the service")
	productID := flag.Int64("product", 6, "product every shopper buys one unit of")
	stock := flag.Int("stock", 0, "stock of the product before the run; enables the oversell check")
	shoppers := flag.Int("shoppers", 100, "number of shoppers, each checking out once")
	concurrency := flag.Int("concurrency", 20, "number of concurrent checkouts")
	method := flag.String("method", "UPI", "payment method")
	timeout := flag.Duration("timeout", 10*time.Second, "per-request timeout")
	output := flag.String("output", "", "optional output path for JSON result")
	flag.Parse()

	if *shoppers <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "shoppers and concurrency must be > 0")
		os.Exit(1)
	}

	client := apiclient.New(*baseURL, *secret, *timeout)
	ctx := context.Background()
	base := time.Now().Unix() * 1000

	// Fill every cart first so the measured phase only contends on checkout.
	fill, fctx := errgroup.WithContext(ctx)
	fill.SetLimit(*concurrency)
	for i := 0; i < *shoppers; i++ {
		userID := base + int64(i)
		fill.Go(func() error {
			resp, err := client.AddToCart(fctx, userID, *productID, 1)
			if err != nil {
				return err
			}
			if !resp.OK() {
				return fmt.Errorf("add to cart for user %d: status %d: %s", userID, resp.StatusCode, resp.Message())
			}
			return nil
		})
	}
	if err := fill.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "prepare carts: %v\n", err)
		os.Exit(1)
	}

	m := newMetrics()
	var g errgroup.Group
	g.SetLimit(*concurrency)
	start := time.Now()
	for i := 0; i < *shoppers; i++ {
		userID := base + int64(i)
		g.Go(func() error {
			t0 := time.Now()
			resp, err := client.Checkout(ctx, userID, *method)
			m.record(time.Since(t0), resp, err)
			return nil
		})
	}
	_ = g.Wait()
	duration := time.Since(start)

	lat := append([]float64(nil), m.latenciesMs...)
	sort.Float64s(lat)
	p50, p90, p95, p99 := calcPercentiles(lat)
	result := benchResult{
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		BaseURL:          *baseURL,
		ProductID:        *productID,
		PaymentMethod:    *method,
		Shoppers:         *shoppers,
		Concurrency:      *concurrency,
		InitialStock:     *stock,
		Orders:           m.orders,
		Rejected:         m.rejected,
		Errors:           m.errors,
		DuplicateNumbers: m.duplicates(),
		Oversold:         *stock > 0 && m.orders > *stock,
		DurationSeconds:  duration.Seconds(),
		AvgLatencyMs:     mean(lat),
		P50LatencyMs:     p50,
		P90LatencyMs:     p90,
		P95LatencyMs:     p95,
		P99LatencyMs:     p99,
		ThroughputRPS:    float64(m.orders) / duration.Seconds(),
		StatusCounts:     m.statusCounts,
		Rejections:       m.rejections,
		FirstError:       m.firstError,
	}
	if len(lat) > 0 {
		result.MinLatencyMs = lat[0]
		result.MaxLatencyMs = lat[len(lat)-1]
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode result: %v\n", err)
		os.Exit(1)
	}
	if *output != "" {
		if err := writeJSON(*output, result); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write output: %v\n", err)
			os.Exit(1)
		}
	}
	if result.Oversold || result.DuplicateNumbers > 0 {
		fmt.Fprintln(os.Stderr, "consistency check failed")
		os.Exit(2)
	}
}

func writeJSON(path string, result benchResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// calcPercentiles expects sorted input.
func calcPercentiles(sorted []float64) (float64, float64, float64, float64) {
	return percentile(sorted, 0.50), percentile(sorted, 0.90), percentile(sorted, 0.95), percentile(sorted, 0.99)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	return sorted[rank]
}
