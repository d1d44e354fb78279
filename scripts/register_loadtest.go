//go:build ignore
// +build ignore

// Load test for the registration endpoint.
//
// Usage:
//   go run scripts/register_loadtest.go \
//     --url=http://127.0.0.1:8000 \
//     --duration=1m \
//     --concurrency=50 \
//     --redis="localhost:6379" \
//     --stream=newsletter-subscription-created
//
// Every request registers a fresh address under --domain, so the run only
// exercises the new-subscriber path. When --redis is set the stream length
// is compared against the number of 200 responses at the end.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

type loadTestConfig struct {
	BaseURL     string
	Duration    time.Duration
	Concurrency int
	Domain      string
	RedisAddr   string
	Stream      string
}

// =============================================================================
// RESULTS
// =============================================================================

type results struct {
	total     atomic.Int64
	errors    atomic.Int64
	byStatus  sync.Map // int -> *atomic.Int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (r *results) record(status int, d time.Duration) {
	r.total.Add(1)
	v, _ := r.byStatus.LoadOrStore(status, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
	r.mu.Lock()
	r.latencies = append(r.latencies, d)
	r.mu.Unlock()
}

func (r *results) statusCount(status int) int64 {
	v, ok := r.byStatus.Load(status)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

func (r *results) percentile(p float64) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.latencies) == 0 {
		return 0
	}
	sort.Slice(r.latencies, func(i, j int) bool { return r.latencies[i] < r.latencies[j] })
	idx := int(float64(len(r.latencies)-1) * p)
	return r.latencies[idx]
}

// =============================================================================
// MAIN
// =============================================================================

func main() {
	cfg := loadTestConfig{}
	flag.StringVar(&cfg.BaseURL, "url", "http://127.0.0.1:8000", "server base URL")
	flag.DurationVar(&cfg.Duration, "duration", time.Minute, "test duration")
	flag.IntVar(&cfg.Concurrency, "concurrency", 20, "concurrent clients")
	flag.StringVar(&cfg.Domain, "domain", "loadtest.example.com", "email domain for generated subscribers")
	flag.StringVar(&cfg.RedisAddr, "redis", "", "redis address for stream verification (optional)")
	flag.StringVar(&cfg.Stream, "stream", "newsletter-subscription-created", "SubscriptionCreated stream")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var before int64
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		before, _ = rdb.XLen(context.Background(), cfg.Stream).Result()
	}

	client := &http.Client{Timeout: 10 * time.Second}
	res := &results{}
	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/subscriptions"

	log.Printf("Registering against %s with %d clients for %s", endpoint, cfg.Concurrency, cfg.Duration)
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				id := uuid.NewString()[:12]
				form := url.Values{
					"email": {fmt.Sprintf("load-%s@%s", id, cfg.Domain)},
					"name":  {"load " + id},
				}
				req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
				if err != nil {
					res.errors.Add(1)
					continue
				}
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

				t0 := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() == nil {
						res.errors.Add(1)
					}
					continue
				}
				resp.Body.Close()
				res.record(resp.StatusCode, time.Since(t0))
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println()
	fmt.Println("==================== RESULTS ====================")
	fmt.Printf("Requests:      %d (%.1f/s)\n", res.total.Load(), float64(res.total.Load())/elapsed.Seconds())
	fmt.Printf("Transport err: %d\n", res.errors.Load())
	for _, code := range []int{200, 400, 409, 500} {
		fmt.Printf("HTTP %d:      %d\n", code, res.statusCount(code))
	}
	fmt.Printf("Latency p50:   %s\n", res.percentile(0.50))
	fmt.Printf("Latency p99:   %s\n", res.percentile(0.99))

	if rdb != nil {
		after, err := rdb.XLen(context.Background(), cfg.Stream).Result()
		if err != nil {
			log.Printf("stream check failed: %v", err)
			return
		}
		published := after - before
		fmt.Printf("Events added:  %d (expected %d)\n", published, res.statusCount(200))
		if published != res.statusCount(200) {
			fmt.Println("WARNING: event count does not match successful registrations")
		}
	}
}
