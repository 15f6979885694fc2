// Command beacon-bench drives concurrent Client.Beacon calls against a
// target URL and reports throughput and latency percentiles.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	goredis "github.com/redis/go-redis/v9"

	"github.com/feltlabs/beacon"
	"github.com/feltlabs/beacon/etcdqueue"
	"github.com/feltlabs/beacon/rediskv"
)

type backendKind string

const (
	backendNone   backendKind = "none"
	backendEtcd   backendKind = "etcd"
	backendRedis  backendKind = "redis"
)

const (
	defaultRecords          = 10000
	defaultPayloadBytes     = 256
	defaultProducers        = 8
	defaultProgressInterval = 5 * time.Second
	percentileP50           = 0.50
	percentileP95           = 0.95
	percentileP99           = 0.99
	percentScale            = 100
)

var (
	errURLRequired       = errors.New("beacon-bench: url is required")
	errUnsupportedBackend = errors.New("beacon-bench: unsupported backend")
	errEtcdEndpointsRequired  = errors.New("beacon-bench: etcd-endpoints is required for backend=etcd")
	errRedisAddrRequired      = errors.New("beacon-bench: redis-addr is required for backend=redis")
)

type result struct {
	Backend          backendKind   `json:"backend"`
	Records          int           `json:"records"`
	Producers        int           `json:"producers"`
	PayloadBytes     int           `json:"payload_bytes"`
	Duration         time.Duration `json:"duration"`
	Throughput       float64       `json:"throughput_msg_per_sec"`
	Sent             int64         `json:"sent"`
	Persisted        int64         `json:"persisted"`
	Dropped          int64         `json:"dropped"`
	LatencyP50Ms     float64       `json:"latency_p50_ms"`
	LatencyP95Ms     float64       `json:"latency_p95_ms"`
	LatencyP99Ms     float64       `json:"latency_p99_ms"`
	LatencyMaxMs     float64       `json:"latency_max_ms"`
	LatencyMeanMs    float64       `json:"latency_mean_ms"`
	LatencySamples   int           `json:"latency_samples"`
	GoHeapAllocBytes uint64        `json:"go_heap_alloc_bytes"`
	GoNumGC          uint32        `json:"go_num_gc"`
}

func main() {
	var (
		url              string
		backend          string
		records          int
		producers        int
		payloadBytes     int
		etcdEndpoints    string
		etcdPrefix       string
		redisAddr        string
		redisKey         string
		progress         bool
		progressInterval time.Duration
		jsonOut          bool
	)

	flag.StringVar(&url, "url", "", "Target URL every beacon is sent to")
	flag.StringVar(&backend, "backend", string(backendNone), "Persistence backend: none, etcd, or redis")
	flag.IntVar(&records, "records", defaultRecords, "Number of beacons to send")
	flag.IntVar(&producers, "producers", defaultProducers, "Concurrent producer goroutines")
	flag.IntVar(&payloadBytes, "payload-bytes", defaultPayloadBytes, "Payload size in bytes")
	flag.StringVar(&etcdEndpoints, "etcd-endpoints", "", "Comma-separated etcd endpoints (backend=etcd)")
	flag.StringVar(&etcdPrefix, "etcd-prefix", "beacon-bench/", "Key prefix for the etcd backend")
	flag.StringVar(&redisAddr, "redis-addr", "", "Redis address (backend=redis)")
	flag.StringVar(&redisKey, "redis-key", "beacon-bench", "Key the redis backend stores entries under")
	flag.BoolVar(&progress, "progress", true, "Emit progress updates to stderr")
	flag.DurationVar(&progressInterval, "progress-interval", defaultProgressInterval, "Progress update interval")
	flag.BoolVar(&jsonOut, "json", false, "Print JSON result")
	flag.Parse()

	if url == "" {
		exitErr(errURLRequired)
	}

	kind := backendKind(backend)
	backendImpl, err := buildBackend(kind, etcdEndpoints, etcdPrefix, redisAddr, redisKey)
	if err != nil {
		exitErr(err)
	}

	client, err := newClient(backendImpl)
	if err != nil {
		exitErr(err)
	}

	// #nosec G404 -- deterministic RNG for benchmark payloads.
	rng := rand.New(rand.NewSource(1))
	payload := buildPayload(payloadBytes, rng)

	res, err := run(client, runConfig{
		url:              url,
		backend:          kind,
		records:          records,
		producers:        producers,
		payload:          payload,
		progress:         progress,
		progressInterval: progressInterval,
	})
	if err != nil {
		exitErr(err)
	}

	if jsonOut {
		if err := json.NewEncoder(os.Stdout).Encode(res); err != nil {
			exitErr(err)
		}

		return
	}

	fmt.Printf(
		"RESULT backend=%s records=%d duration=%s throughput=%.0f/s sent=%d persisted=%d dropped=%d p50=%.1fms p99=%.1fms\n",
		res.Backend, res.Records, res.Duration, res.Throughput, res.Sent, res.Persisted, res.Dropped,
		res.LatencyP50Ms, res.LatencyP99Ms,
	)
}

func buildBackend(kind backendKind, etcdEndpoints, etcdPrefix, redisAddr, redisKey string) (beacon.Backend, error) {
	switch kind {
	case backendNone:
		return nil, nil
	case backendEtcd:
		if etcdEndpoints == "" {
			return nil, errEtcdEndpointsRequired
		}
		cli, err := clientv3.New(clientv3.Config{Endpoints: strings.Split(etcdEndpoints, ",")})
		if err != nil {
			return nil, fmt.Errorf("beacon-bench: dial etcd: %w", err)
		}

		return etcdqueue.NewStore(cli, etcdqueue.WithPrefix(etcdPrefix))
	case backendRedis:
		if redisAddr == "" {
			return nil, errRedisAddrRequired
		}
		cli := goredis.NewClient(&goredis.Options{Addr: redisAddr})

		return rediskv.NewStore(cli, rediskv.WithKey(redisKey))
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedBackend, kind)
	}
}

func newClient(backendImpl beacon.Backend) (*beacon.Client, error) {
	transport := beacon.NewKeepaliveTransport(http.DefaultClient)
	if backendImpl == nil {
		return beacon.New(transport, nil, beacon.WithDisablePersistenceRetry())
	}

	return beacon.New(transport, backendImpl)
}

type runConfig struct {
	url              string
	backend          backendKind
	records          int
	producers        int
	payload          []byte
	progress         bool
	progressInterval time.Duration
}

type benchMetrics struct {
	sent      int64
	persisted int64
	dropped   int64
	latency   latencyStats
}

func (m *benchMetrics) ObserveSendDuration(d time.Duration) { m.latency.Record(d) }
func (m *benchMetrics) AddSent(n int)                       { atomic.AddInt64(&m.sent, int64(n)) }
func (m *benchMetrics) AddRetried(int)                      {}
func (m *benchMetrics) AddPersisted(n int)                  { atomic.AddInt64(&m.persisted, int64(n)) }
func (m *benchMetrics) AddDropped(n int)                    { atomic.AddInt64(&m.dropped, int64(n)) }
func (m *benchMetrics) SetQueueDepth(int)                   {}

func run(client *beacon.Client, cfg runConfig) (result, error) {
	metrics := &benchMetrics{}
	ctx := context.Background()
	var produced int64

	progress := newProgressPrinter(cfg.progress, cfg.progressInterval)
	if progress.Enabled() {
		progressCtx, progressCancel := context.WithCancel(context.Background())
		go reportProgress(progressCtx, progress, cfg, &produced)
		defer func() {
			progressCancel()
			progress.Done(fmt.Sprintf("beacon-bench: %d/%d done", atomic.LoadInt64(&produced), cfg.records))
		}()
	}

	start := time.Now()
	perProducer := int(math.Ceil(float64(cfg.records) / float64(cfg.producers)))
	var wg sync.WaitGroup
	for i := 0; i < cfg.producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				n := atomic.AddInt64(&produced, 1)
				if n > int64(cfg.records) {
					return
				}
				attemptStart := time.Now()
				res := client.Beacon(ctx, cfg.url, string(cfg.payload), nil)
				metrics.ObserveSendDuration(time.Since(attemptStart))
				switch {
				case res.Type == beacon.ResultSuccess || res.Type == beacon.ResultUnknown:
					metrics.AddSent(1)
				case res.Type == beacon.ResultPersisted:
					metrics.AddPersisted(1)
				case res.Drop:
					metrics.AddDropped(1)
				}
			}
		}()
	}
	wg.Wait()
	duration := time.Since(start)

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	latSnap := metrics.latency.Snapshot()

	return result{
		Backend:          cfg.backend,
		Records:          cfg.records,
		Producers:        cfg.producers,
		PayloadBytes:     len(cfg.payload),
		Duration:         duration,
		Throughput:       float64(cfg.records) / duration.Seconds(),
		Sent:             atomic.LoadInt64(&metrics.sent),
		Persisted:        atomic.LoadInt64(&metrics.persisted),
		Dropped:          atomic.LoadInt64(&metrics.dropped),
		LatencyP50Ms:     msFloat(latSnap.P50),
		LatencyP95Ms:     msFloat(latSnap.P95),
		LatencyP99Ms:     msFloat(latSnap.P99),
		LatencyMaxMs:     msFloat(latSnap.Max),
		LatencyMeanMs:    msFloat(latSnap.Mean),
		LatencySamples:   latSnap.Count,
		GoHeapAllocBytes: ms.HeapAlloc,
		GoNumGC:          ms.NumGC,
	}, nil
}

type latencyStats struct {
	mu      sync.Mutex
	samples []time.Duration
}

func (l *latencyStats) Record(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	l.samples = append(l.samples, d)
	l.mu.Unlock()
}

type latencySnapshot struct {
	P50, P95, P99, Max, Mean time.Duration
	Count                    int
}

func (l *latencyStats) Snapshot() latencySnapshot {
	l.mu.Lock()
	samples := append([]time.Duration(nil), l.samples...)
	l.mu.Unlock()
	if len(samples) == 0 {
		return latencySnapshot{}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	return latencySnapshot{
		P50:   percentile(samples, percentileP50),
		P95:   percentile(samples, percentileP95),
		P99:   percentile(samples, percentileP99),
		Max:   samples[len(samples)-1],
		Mean:  meanDuration(samples),
		Count: len(samples),
	}
}

func percentile(samples []time.Duration, p float64) time.Duration {
	idx := int(math.Ceil(p*float64(len(samples)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(samples) {
		idx = len(samples) - 1
	}

	return samples[idx]
}

func meanDuration(samples []time.Duration) time.Duration {
	var sum time.Duration
	for _, d := range samples {
		sum += d
	}

	return sum / time.Duration(len(samples))
}

func msFloat(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func buildPayload(size int, rng *rand.Rand) []byte {
	if size <= 0 {
		size = 1
	}
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	data := make([]byte, size)
	for i := range data {
		data[i] = alphabet[rng.Intn(len(alphabet))]
	}

	return data
}

type progressPrinter struct {
	enabled  bool
	interval time.Duration
	mu       sync.Mutex
	lastLen  int
}

func newProgressPrinter(enabled bool, interval time.Duration) *progressPrinter {
	return &progressPrinter{enabled: enabled, interval: interval}
}

func (p *progressPrinter) Enabled() bool { return p.enabled && p.interval > 0 }

func (p *progressPrinter) Print(line string) {
	if !p.Enabled() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	padding := ""
	if p.lastLen > len(line) {
		padding = strings.Repeat(" ", p.lastLen-len(line))
	}
	fmt.Fprintf(os.Stderr, "\r%s%s", line, padding)
	p.lastLen = len(line)
}

func (p *progressPrinter) Done(line string) {
	if !p.Enabled() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(os.Stderr, "\r%s\n", line)
}

func reportProgress(ctx context.Context, printer *progressPrinter, cfg runConfig, produced *int64) {
	ticker := time.NewTicker(printer.interval)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := atomic.LoadInt64(produced)
			elapsed := time.Since(start)
			rate := 0.0
			if elapsed > 0 {
				rate = float64(current) / elapsed.Seconds()
			}
			percent := float64(current) / float64(cfg.records) * percentScale
			printer.Print(fmt.Sprintf(
				"beacon-bench: %d/%d (%.1f%%) rate=%.0f/s backend=%s producers=%d",
				current, cfg.records, percent, rate, cfg.backend, cfg.producers,
			))
		}
	}
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
