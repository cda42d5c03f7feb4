// Command stockcast runs one prediction batch: it reads an items JSON
// file, pushes it through the pipeline against the configured scoring
// service, and writes the per-item results to stdout as JSON.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/merchkit/stockcast/internal/adapters/audit"
	"github.com/merchkit/stockcast/internal/adapters/ratelimit"
	"github.com/merchkit/stockcast/internal/adapters/recorder"
	"github.com/merchkit/stockcast/internal/adapters/transport"
	"github.com/merchkit/stockcast/internal/adapters/usagelog"
	"github.com/merchkit/stockcast/internal/adapters/warehouse"
	service "github.com/merchkit/stockcast/internal/app"
	"github.com/merchkit/stockcast/internal/config"
	"github.com/merchkit/stockcast/internal/domain/dispatch"
	"github.com/merchkit/stockcast/internal/domain/feature"
	"github.com/merchkit/stockcast/internal/domain/model"
	"github.com/merchkit/stockcast/internal/domain/normalize"
	"github.com/merchkit/stockcast/pkg/logger"
	"github.com/merchkit/stockcast/pkg/metrics"
)

// Metrics server timeout constants.
const (
	readHeaderTimeout = 5 * time.Second
)

func main() {
	itemsPath := flag.String("items", "", "path to the items JSON file")
	persist := flag.Bool("persist", false, "persist successful predictions")
	tenant := flag.String("tenant", "default", "tenant identity for rate limiting and usage accounting")
	flag.Parse()

	if *itemsPath == "" {
		os.Stderr.WriteString("usage: stockcast -items <file> [-persist] [-tenant <id>]\n")
		os.Exit(2)
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	go serveMetrics(ctx, cfg.MetricsAddr)

	items, err := readItems(*itemsPath)
	if err != nil {
		log.Error(ctx, "read items failed", logger.Error(err))
		os.Exit(1)
	}

	svc, limiter, cleanup, err := buildService(ctx, cfg, *tenant, log)
	if err != nil {
		log.Error(ctx, "build pipeline failed", logger.Error(err))
		os.Exit(1)
	}
	defer cleanup()

	// Admission control sits in front of the orchestrator.
	if limiter != nil && !limiter.Admit(ctx, *tenant) {
		metrics.RecordBatchRejected()
		log.Error(ctx, "batch rejected: tenant over its rate window",
			logger.String("tenant", *tenant))
		os.Exit(1)
	}

	var results []model.ItemResult
	if *persist {
		results, err = svc.PredictAndPersist(ctx, items)
	} else {
		results, err = svc.Predict(ctx, items)
	}
	if err != nil {
		log.Error(ctx, "batch failed", logger.Error(err))
		os.Exit(1)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(results); err != nil {
		log.Error(ctx, "write results failed", logger.Error(err))
		os.Exit(1)
	}
}

// buildService wires the pipeline from configuration. The returned
// limiter is nil when no Redis is configured; the returned cleanup
// closes every connection that was opened.
func buildService(ctx context.Context, cfg *config.Config, tenant string, log logger.Logger) (*service.Service, *ratelimit.Limiter, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	tr, err := transport.New(transport.Config{
		Kind:      cfg.Transport,
		Endpoint:  cfg.PredictorEndpoint,
		AuthToken: cfg.PredictorToken,
		AMQPURL:   cfg.AMQPURL,
		Queue:     cfg.AMQPQueue,
		Timeout:   cfg.CallTimeout,
	})
	if err != nil {
		return nil, nil, cleanup, err
	}
	if closer, ok := tr.(io.Closer); ok {
		closers = append(closers, func() { _ = closer.Close() })
	}

	var source feature.Source = unavailableSource{}
	var store *warehouse.Store
	if cfg.PostgresDSN != "" {
		store, err = warehouse.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, cleanup, err
		}
		source = store
		closers = append(closers, store.Close)
	}

	cache := feature.NewCache(
		feature.WithTTL(cfg.CacheTTL),
		feature.WithThreshold(cfg.CacheThreshold),
	)
	builder := feature.NewBuilder(source, feature.WithCache(cache))

	normalizer := normalize.New(builder,
		normalize.WithConcurrency(cfg.BuildConcurrency),
	)
	dispatcher := dispatch.New(tr,
		dispatch.WithChunkSize(cfg.ChunkSize),
		dispatch.WithModelVersion(cfg.ModelVersion),
	)

	opts := []service.Option{
		service.WithLogger(log),
		service.WithTenant(tenant),
		service.WithModelVersion(cfg.ModelVersion),
	}

	if store != nil {
		opts = append(opts, service.WithRecorder(recorder.New(store.Pool())))

		if cfg.AuditKey != "" {
			key, err := hex.DecodeString(cfg.AuditKey)
			if err != nil {
				return nil, nil, cleanup, fmt.Errorf("decode audit key: %w", err)
			}
			auditStore, err := audit.New(store.Pool(), key)
			if err != nil {
				return nil, nil, cleanup, err
			}
			opts = append(opts, service.WithAuditStore(auditStore))
		}
	}

	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		closers = append(closers, func() { _ = client.Close() })
		limiter = ratelimit.New(client)
		opts = append(opts, service.WithUsageLog(usagelog.New(client)))
	}

	return service.New(normalizer, dispatcher, opts...), limiter, cleanup, nil
}

// unavailableSource stands in when no warehouse is configured. Only
// prebuilt items can be scored in that mode.
type unavailableSource struct{}

func (unavailableSource) ItemWindowStats(context.Context, string, time.Time, time.Time) (feature.WindowStats, error) {
	return feature.WindowStats{}, errNoWarehouse
}

func (unavailableSource) ScopeWindowStats(context.Context, string, time.Time, time.Time) (feature.WindowStats, error) {
	return feature.WindowStats{}, errNoWarehouse
}

func (unavailableSource) PriceStats(context.Context, string) (feature.PriceStats, error) {
	return feature.PriceStats{}, errNoWarehouse
}

func (unavailableSource) RatingStats(context.Context, string) (feature.RatingStats, error) {
	return feature.RatingStats{}, errNoWarehouse
}

func (unavailableSource) InventoryStats(context.Context, string) (feature.InventoryStats, error) {
	return feature.InventoryStats{}, errNoWarehouse
}

var errNoWarehouse = fmt.Errorf("no warehouse configured")

// readItems decodes the batch input file.
func readItems(path string) ([]model.InputItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var items []model.InputItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return items, nil
}

// serveMetrics exposes /metrics and /healthz until the context ends.
func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		os.Stderr.WriteString("metrics server failed: " + err.Error() + "\n")
	}
}
