package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nazeru/quickmart-checkout-go/pkg/apiclient"
)

type scenario struct {
	Name        string
	Description string
}

type model struct {
	methods        []string
	scenarios      []scenario
	selectedMethod int
	selectedScn    int
	status         string
	metrics        string
	busy           bool
	client         *apiclient.Client
	productID      int64
}

func initialModel(client *apiclient.Client, productID int64) model {
	return model{
		methods: []string{"CreditCard", "DebitCard", "UPI", "Cash", "Barter"},
		scenarios: []scenario{
			{"success", "Add one item and check out"},
			{"empty", "Check out an empty cart"},
			{"stock", "Ask for more than the shelf holds"},
			{"bench", "Concurrent checkouts for 5s"},
		},
		status:    "Ready",
		client:    client,
		productID: productID,
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up":
			if m.selectedMethod > 0 {
				m.selectedMethod--
			}
		case "down":
			if m.selectedMethod < len(m.methods)-1 {
				m.selectedMethod++
			}
		case "left":
			if m.selectedScn > 0 {
				m.selectedScn--
			}
		case "right":
			if m.selectedScn < len(m.scenarios)-1 {
				m.selectedScn++
			}
		case "enter":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Running..."
			return m, runScenarioCmd(m.client, m.productID, m.methods[m.selectedMethod], m.scenarios[m.selectedScn].Name)
		}
	case scenarioResult:
		m.busy = false
		m.status = msg.status
		m.metrics = msg.metrics
	}
	return m, nil
}

func (m model) View() string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "quickmart checkout CLI")
	fmt.Fprintln(b, "")
	fmt.Fprintln(b, "Payment method:")
	for i, method := range m.methods {
		marker := " "
		if i == m.selectedMethod {
			marker = ">"
		}
		fmt.Fprintf(b, " %s %s\n", marker, method)
	}
	fmt.Fprintln(b, "")
	fmt.Fprintln(b, "Scenarios (use left/right):")
	for i, scn := range m.scenarios {
		marker := " "
		if i == m.selectedScn {
			marker = "*"
		}
		fmt.Fprintf(b, " %s %s - %s\n", marker, scn.Name, scn.Description)
	}
	fmt.Fprintln(b, "")
	fmt.Fprintf(b, "Status: %s\n", m.status)
	if m.metrics != "" {
		fmt.Fprintf(b, "Metrics: %s\n", m.metrics)
	}
	fmt.Fprintln(b, "\nControls: up/down select payment method, left/right select scenario, enter to run, q to quit")
	return b.String()
}

type scenarioResult struct {
	status  string
	metrics string
}

func runScenarioCmd(client *apiclient.Client, productID int64, method, scn string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		userID := time.Now().UnixNano() % 1_000_000_000
		switch scn {
		case "bench":
			return scenarioResult{status: "Benchmark finished", metrics: runBenchmark(client, productID, method)}
		case "empty":
			return checkoutResult(client.Checkout(ctx, userID, method))
		case "stock":
			resp, err := client.AddToCart(ctx, userID, productID, 1_000_000)
			if err != nil {
				return scenarioResult{status: fmt.Sprintf("Add to cart failed: %v", err)}
			}
			return scenarioResult{status: fmt.Sprintf("Add to cart rejected as expected: %d %s", resp.StatusCode, resp.Message())}
		default:
			resp, err := client.AddToCart(ctx, userID, productID, 1)
			if err != nil {
				return scenarioResult{status: fmt.Sprintf("Add to cart failed: %v", err)}
			}
			if !resp.OK() {
				return scenarioResult{status: fmt.Sprintf("Add to cart failed: %d %s", resp.StatusCode, resp.Message())}
			}
			return checkoutResult(client.Checkout(ctx, userID, method))
		}
	}
}

func checkoutResult(resp apiclient.Response, err error) scenarioResult {
	if err != nil {
		return scenarioResult{status: fmt.Sprintf("Checkout failed: %v", err)}
	}
	if !resp.OK() {
		return scenarioResult{status: fmt.Sprintf("Checkout rejected: %d %s", resp.StatusCode, resp.Message())}
	}
	o, err := apiclient.DecodeOrder(resp)
	if err != nil {
		return scenarioResult{status: fmt.Sprintf("Checkout OK, unreadable body: %v", err)}
	}
	return scenarioResult{status: fmt.Sprintf("Checkout OK: %s %s final=%s", o.OrderNumber, o.Status, o.FinalAmount.StringFixed(2))}
}

func runBenchmark(client *apiclient.Client, productID int64, method string) string {
	duration := 5 * time.Second
	vus := 5
	var mu sync.Mutex
	var total time.Duration
	var count, rejected, failed int
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < vus; i++ {
		wg.Add(1)
		go func(worker int64) {
			defer wg.Done()
			for n := int64(0); ctx.Err() == nil; n++ {
				userID := 1_000_000_000 + worker*1_000_000 + n
				start := time.Now()
				if _, err := client.AddToCart(ctx, userID, productID, 1); err != nil {
					continue
				}
				resp, err := client.Checkout(ctx, userID, method)
				mu.Lock()
				switch {
				case err != nil:
					if ctx.Err() == nil {
						failed++
					}
				case resp.OK():
					count++
					total += time.Since(start)
				case resp.StatusCode < 500:
					rejected++
				default:
					failed++
				}
				mu.Unlock()
			}
		}(int64(i))
	}
	wg.Wait()

	avg := time.Duration(0)
	if count > 0 {
		avg = total / time.Duration(count)
	}
	throughput := float64(count) / duration.Seconds()
	return fmt.Sprintf("orders=%d rejected=%d errors=%d avg=%s throughput=%.2f orders/s", count, rejected, failed, avg, throughput)
}

func main() {
	runCmd := flag.String("run", "", "run scenario: success|empty|stock|bench")
	method := flag.String("method", "CreditCard", "payment method")
	product := flag.Int64("product", 1, "product id used by the scenarios")
	flag.Parse()

	client := apiclient.New(getenv("CHECKOUT_BASE_URL", "http://localhost:8080"), getenv("JWT_SECRET", ""), 10*time.Second)

	if *runCmd != "" {
		res := runScenarioCmd(client, *product, *method, *runCmd)().(scenarioResult)
		fmt.Println(res.status)
		if res.metrics != "" {
			fmt.Println(res.metrics)
		}
		return
	}

	p := tea.NewProgram(initialModel(client, *product))
	if _, err := p.Run(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
