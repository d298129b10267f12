// Command loadtest drives concurrent searches against a running search
// service and reports throughput, latency percentiles and status codes.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-concurrency 10] [-duration 30s]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// queries mixes single-field, multi-field, boolean and sorted searches over
// the sample hero records.
var queries = []url.Values{
	{"q": {"钟"}, "fields": {"userName"}},
	{"q": {"肌肉"}, "fields": {"sal"}},
	{"q": {"一"}, "sort": {"id:numeric:desc"}},
	{"q": {"钱 AND 汉"}, "fields": {"sal"}},
	{"q": {"\"只有一个\""}},
	{"q": {"一 -东"}, "sort": {"id:numeric"}},
	{"q": {"真相"}, "highlight": {""}},
	{"q": {"不存在的词"}},
}

type result struct {
	latency time.Duration
	status  int
	hits    int
	err     error
}

type recorder struct {
	mu      sync.Mutex
	results []result
}

func (r *recorder) add(res result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	limit := flag.Int("limit", 10, "results per search")
	flag.Parse()

	fmt.Printf("target %s, %d workers for %s, %d query shapes\n", *baseURL, *concurrency, *duration, len(queries))

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        *concurrency * 2,
			MaxIdleConnsPerHost: *concurrency * 2,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	rec := &recorder{}
	g, ctx := errgroup.WithContext(ctx)
	for w := range *concurrency {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				params := cloneValues(queries[i%len(queries)])
				params.Set("limit", fmt.Sprint(*limit))
				res := searchOnce(ctx, client, *baseURL+"/api/v1/search?"+params.Encode())
				if errors.Is(res.err, context.DeadlineExceeded) || errors.Is(res.err, context.Canceled) {
					return nil
				}
				rec.add(res)
			}
			return nil
		})
	}
	_ = g.Wait()

	if !report(rec.results, *duration) {
		fmt.Println("no requests completed; is the service running?")
		os.Exit(1)
	}
}

func searchOnce(ctx context.Context, client *http.Client, rawURL string) result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return result{err: err}
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return result{latency: time.Since(start), err: err}
	}
	defer resp.Body.Close()
	var body struct {
		TotalHits int `json:"totalHits"`
	}
	err = json.NewDecoder(resp.Body).Decode(&body)
	return result{latency: time.Since(start), status: resp.StatusCode, hits: body.TotalHits, err: err}
}

func report(results []result, duration time.Duration) bool {
	var (
		latencies []time.Duration
		failed    int
		empty     int
		codes     = map[int]int{}
	)
	for _, r := range results {
		if r.err != nil || r.status >= 300 {
			failed++
		}
		if r.err == nil {
			codes[r.status]++
			latencies = append(latencies, r.latency)
			if r.status == http.StatusOK && r.hits == 0 {
				empty++
			}
		}
	}
	total := len(results)
	fmt.Printf("requests %d  failed %d  zero-hit %d  rps %.1f\n", total, failed, empty, float64(total)/duration.Seconds())
	if len(latencies) > 0 {
		slices.Sort(latencies)
		fmt.Printf("latency min %s  p50 %s  p90 %s  p99 %s  max %s\n",
			latencies[0], percentile(latencies, 50), percentile(latencies, 90),
			percentile(latencies, 99), latencies[len(latencies)-1])
	}
	statuses := make([]int, 0, len(codes))
	for code := range codes {
		statuses = append(statuses, code)
	}
	slices.Sort(statuses)
	for _, code := range statuses {
		fmt.Printf("  %d: %d\n", code, codes[code])
	}
	return total > 0
}

// percentile uses the nearest-rank method on sorted.
func percentile(sorted []time.Duration, p int) time.Duration {
	idx := (p*len(sorted)+99)/100 - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+1)
	for k, vals := range v {
		out[k] = slices.Clone(vals)
	}
	return out
}
