// Benchmark tool for replaying content rows against a Kestrel server.
//
// Usage:
//
//	go run ./cmd/benchmark -csv titles.csv -url http://localhost:8080
//
// Each CSV row (bulk upload format) is sent as a viewership and a content
// success prediction. The tool reports latency percentiles, throughput and
// the label distribution per domain.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/bulk"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Row is one CSV row keyed by lowercase column name.
type Row map[string]string

func (r Row) number(col string) any {
	if v, err := strconv.ParseFloat(strings.TrimSpace(r[col]), 64); err == nil {
		return v
	}
	return r[col]
}

func (r Row) viewership() map[string]any {
	return map[string]any{
		"contentType":         r["content_type"],
		"genre":               r["genre"],
		"releaseHour":         r.number("release_hour"),
		"marketingBudget":     r.number("marketing_budget"),
		"leadActorPopularity": r.number("cast_popularity"),
	}
}

func (r Row) content() map[string]any {
	return map[string]any{
		"budget":             r.number("budget"),
		"castPopularity":     r.number("cast_popularity"),
		"directorExperience": r.number("director_experience"),
		"marketingBudget":    r.number("marketing_budget"),
		"genre":              r["genre"],
	}
}

// PredictResponse holds the fields shared by every prediction response.
type PredictResponse struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Results collects benchmark measurements.
type Results struct {
	TotalRequests int64
	TotalErrors   int64

	mu        sync.Mutex
	latencies []time.Duration
	labels    map[domain.ScoringDomain]map[string]int
}

func (r *Results) record(d domain.ScoringDomain, label string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latencies = append(r.latencies, latency)
	if r.labels[d] == nil {
		r.labels[d] = make(map[string]int)
	}
	r.labels[d][label]++
}

func main() {
	csvPath := flag.String("csv", "", "Path to a CSV file in bulk upload format")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	limit := flag.Int("limit", 0, "Maximum rows to replay (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent clients")
	repeat := flag.Int("repeat", 1, "Times to replay the file")
	verbose := flag.Bool("verbose", false, "Print each prediction")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv titles.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("KESTREL BENCHMARK")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Repeat:      %d\n", *repeat)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run ./cmd/kestrel")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	rows, err := readRows(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d rows\n", len(rows))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	results := runBenchmark(rows, *repeat, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(results, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readRows(path string, limit int) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, col := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
	}
	for _, col := range bulk.Columns {
		if !slices.Contains(header, col) {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		row := make(Row, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, row)

		if limit > 0 && len(rows) >= limit {
			break
		}
	}

	return rows, nil
}

type job struct {
	domain domain.ScoringDomain
	body   map[string]any
}

func runBenchmark(rows []Row, repeat int, baseURL string, numWorkers int, verbose bool) *Results {
	results := &Results{labels: make(map[domain.ScoringDomain]map[string]int)}

	work := make(chan job, 100)
	var wg sync.WaitGroup

	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for j := range work {
				start := time.Now()
				resp, err := predict(client, baseURL, j)
				elapsed := time.Since(start)

				atomic.AddInt64(&results.TotalRequests, 1)
				if err != nil {
					atomic.AddInt64(&results.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", j.domain, err)
					}
					continue
				}

				results.record(j.domain, resp.Label, elapsed)
				if verbose {
					fmt.Printf("%-16s | %-10s | %6.1f ms\n", j.domain, resp.Label, float64(elapsed.Microseconds())/1000)
				}
			}
		}()
	}

	for range repeat {
		for _, row := range rows {
			work <- job{domain: domain.DomainViewership, body: row.viewership()}
			work <- job{domain: domain.DomainContentSuccess, body: row.content()}
		}
	}
	close(work)

	wg.Wait()
	return results
}

func predict(client *http.Client, baseURL string, j job) (*PredictResponse, error) {
	body, err := json.Marshal(j.body)
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(baseURL+"/predict/"+string(j.domain), "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// percentile returns the p-th percentile of sorted latencies.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p / 100 * float64(len(sorted)-1))
	return sorted[idx]
}

func printResults(r *Results, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nREQUESTS\n")
	fmt.Printf("   Total:            %d\n", r.TotalRequests)
	fmt.Printf("   Errors:           %d\n", r.TotalErrors)

	slices.Sort(r.latencies)
	fmt.Printf("\nLATENCY\n")
	for _, p := range []float64{50, 90, 95, 99} {
		fmt.Printf("   p%-3.0f             %v\n", p, percentile(r.latencies, p).Round(time.Microsecond))
	}
	if n := len(r.latencies); n > 0 {
		fmt.Printf("   max              %v\n", r.latencies[n-1].Round(time.Microsecond))
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if r.TotalRequests > 0 {
		fmt.Printf("   Throughput:       %.2f req/sec\n", float64(r.TotalRequests)/duration.Seconds())
	}

	fmt.Printf("\nLABELS\n")
	for _, d := range domain.Domains() {
		counts, ok := r.labels[d]
		if !ok {
			continue
		}
		total := 0
		labels := make([]string, 0, len(counts))
		for label, n := range counts {
			labels = append(labels, label)
			total += n
		}
		sort.Slice(labels, func(i, j int) bool { return counts[labels[i]] > counts[labels[j]] })

		fmt.Printf("   %s\n", d)
		for _, label := range labels {
			fmt.Printf("      %-12s %6d (%.1f%%)\n", label, counts[label], 100*float64(counts[label])/float64(total))
		}
	}
	fmt.Println()
}
