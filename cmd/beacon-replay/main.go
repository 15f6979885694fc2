// Command beacon-replay periodically drains a persisted beacon queue,
// replaying entries through the configured transport.
//
// It wraps beacon.Queue for operators who want replay driven by a cron job
// or sidecar rather than by the in-browser Notify path.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/feltlabs/beacon"
	"github.com/feltlabs/beacon/etcdqueue"
	"github.com/feltlabs/beacon/rediskv"
)

const exitUsage = 2

var (
	errBackendRequired       = errors.New("beacon-replay: backend is required")
	errUnsupportedBackend    = errors.New("beacon-replay: unsupported backend")
	errEtcdEndpointsRequired = errors.New("beacon-replay: etcd-endpoints is required for backend=etcd")
	errRedisAddrRequired     = errors.New("beacon-replay: redis-addr is required for backend=redis")
)

type stdLogger struct {
	logger  *log.Logger
	verbose bool
}

func (l stdLogger) Debug(msg string, args ...any) {
	if !l.verbose {
		return
	}
	l.logger.Printf("DEBUG %s %s", msg, formatArgs(args))
}

func (l stdLogger) Info(msg string, args ...any)  { l.logger.Printf("INFO %s %s", msg, formatArgs(args)) }
func (l stdLogger) Warn(msg string, args ...any)  { l.logger.Printf("WARN %s %s", msg, formatArgs(args)) }
func (l stdLogger) Error(msg string, args ...any) { l.logger.Printf("ERROR %s %s", msg, formatArgs(args)) }

func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(args))
	for i := 0; i < len(args); i += 2 {
		key := args[i]
		val := any("<missing>")
		if i+1 < len(args) {
			val = args[i+1]
		}
		pairs = append(pairs, fmt.Sprintf("%v=%v", key, val))
	}

	return strings.Join(pairs, " ")
}

func main() {
	var (
		backendName   string
		etcdEndpoints string
		etcdPrefix    string
		redisAddr     string
		redisKey      string
		checkEvery    time.Duration
		once          bool
		allowedCodes  string
		verbose       bool
	)

	flag.StringVar(&backendName, "backend", "", "Persistence backend: etcd or redis")
	flag.StringVar(&etcdEndpoints, "etcd-endpoints", "", "Comma-separated etcd endpoints (backend=etcd)")
	flag.StringVar(&etcdPrefix, "etcd-prefix", "beacon-transporter/", "Key prefix for the etcd backend")
	flag.StringVar(&redisAddr, "redis-addr", "", "Redis address (backend=redis)")
	flag.StringVar(&redisKey, "redis-key", "beacon-transporter", "Key the redis backend stores entries under")
	flag.DurationVar(&checkEvery, "check-every", time.Minute, "How often to notify the queue; bursts are also throttled by the queue's 5m default ThrottleWait")
	flag.BoolVar(&once, "once", false, "Trigger one replay burst and exit")
	flag.StringVar(&allowedCodes, "allowed-status-codes", "429,503", "Comma-separated status codes eligible for requeue")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	if backendName == "" {
		fmt.Fprintln(os.Stderr, errBackendRequired)
		flag.Usage()
		os.Exit(exitUsage)
	}

	logger := stdLogger{logger: log.New(os.Stdout, "", log.LstdFlags), verbose: verbose}

	if err := run(runConfig{
		backendName:   backendName,
		etcdEndpoints: etcdEndpoints,
		etcdPrefix:    etcdPrefix,
		redisAddr:     redisAddr,
		redisKey:      redisKey,
		checkEvery:    checkEvery,
		once:          once,
		allowedCodes:  parseCodes(allowedCodes),
		logger:        logger,
	}); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

type runConfig struct {
	backendName   string
	etcdEndpoints string
	etcdPrefix    string
	redisAddr     string
	redisKey      string
	checkEvery    time.Duration
	once          bool
	allowedCodes  []int
	logger        stdLogger
}

func run(cfg runConfig) error {
	backendImpl, err := buildBackend(cfg)
	if err != nil {
		return err
	}

	transport := beacon.NewKeepaliveTransport(nil)
	// A synchronous scheduler ensures each triggered burst finishes draining
	// before Notify returns, so -once can exit without losing a pending drain.
	queue := beacon.NewQueue(backendImpl, transport, beacon.PersistenceRetryConfig{}, false,
		beacon.WithQueueLogger(cfg.logger), beacon.WithQueueScheduler(beacon.SyncScheduler{}))

	ctx := context.Background()
	notifyCfg := beacon.NotifyConfig{AllowedStatusCodes: cfg.allowedCodes}

	if cfg.once {
		queue.Notify(ctx, notifyCfg)
		cfg.logger.Info("replay burst triggered")

		return nil
	}

	ticker := time.NewTicker(cfg.checkEvery)
	defer ticker.Stop()
	for range ticker.C {
		queue.Notify(ctx, notifyCfg)
		cfg.logger.Debug("replay burst triggered")
	}

	return nil
}

func buildBackend(cfg runConfig) (beacon.Backend, error) {
	switch cfg.backendName {
	case "etcd":
		if cfg.etcdEndpoints == "" {
			return nil, errEtcdEndpointsRequired
		}
		cli, err := clientv3.New(clientv3.Config{Endpoints: strings.Split(cfg.etcdEndpoints, ",")})
		if err != nil {
			return nil, fmt.Errorf("beacon-replay: dial etcd: %w", err)
		}

		return etcdqueue.NewStore(cli, etcdqueue.WithPrefix(cfg.etcdPrefix))
	case "redis":
		if cfg.redisAddr == "" {
			return nil, errRedisAddrRequired
		}
		cli := goredis.NewClient(&goredis.Options{Addr: cfg.redisAddr})

		return rediskv.NewStore(cli, rediskv.WithKey(cfg.redisKey))
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedBackend, cfg.backendName)
	}
}

func parseCodes(raw string) []int {
	parts := strings.Split(raw, ",")
	codes := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		var code int
		if _, err := fmt.Sscanf(p, "%d", &code); err == nil {
			codes = append(codes, code)
		}
	}

	return codes
}
