package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Drives concurrent transfers against a running API server and reports
// throughput plus the outcome mix. The hotspot workload concentrates
// traffic on two accounts to stress per-account serialization.
type options struct {
	baseURL     string
	workers     int
	duration    time.Duration
	workload    string
	accounts    int
	amountMinor int64
}

type tally struct {
	mu        sync.Mutex
	created   int
	rejected  int
	conflicts int
	errored   int
	latencies []time.Duration
}

func (t *tally) record(status int, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.latencies = append(t.latencies, latency)
	switch status {
	case http.StatusCreated:
		t.created++
	case http.StatusUnprocessableEntity:
		t.rejected++
	case http.StatusConflict:
		t.conflicts++
	default:
		t.errored++
	}
}

// validate rejects settings pickPair cannot satisfy: fewer than two
// accounts leaves no distinct sender/receiver pair to draw.
func (o options) validate() error {
	if o.accounts < 2 {
		return fmt.Errorf("accounts must be at least 2, got %d", o.accounts)
	}
	if o.workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", o.workers)
	}
	if o.amountMinor <= 0 {
		return fmt.Errorf("amount must be positive, got %d", o.amountMinor)
	}
	switch o.workload {
	case "uniform", "hotspot":
	default:
		return fmt.Errorf("unknown workload %q", o.workload)
	}
	return nil
}

func main() {
	var opts options
	flag.StringVar(&opts.baseURL, "url", "http://localhost:8080", "API base URL")
	flag.IntVar(&opts.workers, "workers", 10, "concurrent workers")
	flag.DurationVar(&opts.duration, "duration", 30*time.Second, "test duration")
	flag.StringVar(&opts.workload, "workload", "uniform", "uniform | hotspot")
	flag.IntVar(&opts.accounts, "accounts", 1000, "number of seeded accounts")
	flag.Int64Var(&opts.amountMinor, "amount", 100, "transfer amount in minor units")
	flag.Parse()

	if err := opts.validate(); err != nil {
		log.Fatal(err)
	}

	log.Printf("workload=%s workers=%d duration=%s", opts.workload, opts.workers, opts.duration)

	results := &tally{}
	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < opts.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			drive(opts, results, start)
		}()
	}
	wg.Wait()

	report(opts, results, time.Since(start))
}

func drive(opts options, results *tally, start time.Time) {
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < opts.duration {
		sender, receiver := pickPair(opts)
		payload, _ := json.Marshal(map[string]interface{}{
			"sender_account_id":   sender,
			"receiver_account_id": receiver,
			"amount":              opts.amountMinor,
			"description":         "bench-" + uuid.NewString(),
		})

		began := time.Now()
		resp, err := client.Post(opts.baseURL+"/api/v1/transfers", "application/json", bytes.NewReader(payload))
		if err != nil {
			results.record(0, time.Since(began))
			continue
		}
		resp.Body.Close()
		results.record(resp.StatusCode, time.Since(began))
	}
}

func pickPair(opts options) (uint64, uint64) {
	if opts.workload == "hotspot" && rand.Float64() < 0.90 {
		if rand.Intn(2) == 0 {
			return 1, 2
		}
		return 2, 1
	}

	a := uint64(rand.Intn(opts.accounts) + 1)
	b := uint64(rand.Intn(opts.accounts) + 1)
	for a == b {
		b = uint64(rand.Intn(opts.accounts) + 1)
	}
	return a, b
}

func report(opts options, results *tally, elapsed time.Duration) {
	results.mu.Lock()
	defer results.mu.Unlock()

	total := len(results.latencies)
	sort.Slice(results.latencies, func(i, j int) bool {
		return results.latencies[i] < results.latencies[j]
	})
	percentile := func(p float64) float64 {
		if total == 0 {
			return 0
		}
		idx := int(p * float64(total-1))
		return results.latencies[idx].Seconds() * 1000
	}

	summary := map[string]interface{}{
		"workload":       opts.workload,
		"duration_sec":   elapsed.Seconds(),
		"total_requests": total,
		"throughput_tps": float64(total) / elapsed.Seconds(),
		"created":        results.created,
		"rejected":       results.rejected,
		"conflicts":      results.conflicts,
		"errors":         results.errored,
		"p50_ms":         percentile(0.50),
		"p99_ms":         percentile(0.99),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(summary)

	file, err := os.Create(fmt.Sprintf("results_%s.json", opts.workload))
	if err != nil {
		log.Printf("could not write results file: %v", err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(summary)
}
