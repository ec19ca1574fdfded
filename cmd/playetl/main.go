package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"playetl/internal/config"
	"playetl/internal/datasource"
	"playetl/internal/datasource/file"
	"playetl/internal/datasource/s3"
	"playetl/internal/metrics"
	"playetl/internal/metrics/datadog"
	"playetl/internal/metrics/prompush"
	"playetl/internal/pipeline"
	"playetl/internal/storage"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "playetl/internal/storage/all"
)

// main loads the pipeline config, optionally initializes a metrics backend,
// and executes one batch run. Exit codes: 0 on success, 1 on a fatal run
// error, 2 on configuration errors.
func main() {
	var (
		cfgPath           string
		songData          string
		logData           string
		variant           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/sparkify.yaml", "pipeline config path (.json or .yaml)")
	flag.StringVar(&songData, "song-data", "", "override source.song_data")
	flag.StringVar(&logData, "log-data", "", "override source.log_data")
	flag.StringVar(&variant, "variant", "", "override load.variant (rowwise or bulk)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (pushgateway, none); empty defers to config")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	// .env is optional; absence is not an error.
	_ = godotenv.Load()

	p, err := config.LoadFile(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}
	if songData != "" {
		p.Source.SongData = songData
	}
	if logData != "" {
		p.Source.LogData = logData
	}
	if variant != "" {
		p.Load.Variant = variant
	}
	config.Normalize(&p)

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("configuration is invalid: %v", cfgPath)
		os.Exit(2)
	}
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	initMetrics(p, metricsBackendFlg, pushGatewayURLFlg, *verbose)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if *verbose {
		log.Printf("pipeline: job=%s source=%s storage=%s variant=%s",
			p.Job, p.Source.Kind, p.Storage.Kind, p.Load.Variant)
	}

	if err := run(ctx, p); err != nil {
		log.Printf("run failed: %v", err)
		os.Exit(1)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

func run(ctx context.Context, p config.Pipeline) error {
	repo, err := storage.New(ctx, storage.Config{
		Kind:             p.Storage.Kind,
		DSN:              p.Storage.DSN,
		AutoCreateTables: p.Storage.AutoCreateTables,
	})
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer repo.Close()

	songs, err := newLister(p.Source, p.Source.SongData)
	if err != nil {
		return fmt.Errorf("song source: %w", err)
	}
	logs, err := newLister(p.Source, p.Source.LogData)
	if err != nil {
		return fmt.Errorf("log source: %w", err)
	}

	runner := &pipeline.Runner{
		Repo:          repo,
		Songs:         songs,
		Logs:          logs,
		Job:           p.Job,
		BatchSize:     p.Load.BatchSize,
		OnRecordError: p.Load.OnRecordError,
		ErrorSamples:  p.Load.ErrorSamples,
	}

	var stats *pipeline.Stats
	switch p.Load.Variant {
	case config.VariantBulk:
		stats, err = runner.RunBulk(ctx)
	default:
		stats, err = runner.Run(ctx)
	}
	if err != nil {
		return err
	}
	if stats.UnitFailures > 0 {
		return fmt.Errorf("%d unit(s) failed", stats.UnitFailures)
	}
	return nil
}

// newLister builds a Lister for one feed root. A nil Lister (no error) means
// the feed is not configured.
func newLister(src config.Source, root string) (datasource.Lister, error) {
	if root == "" {
		return nil, nil
	}
	switch src.Kind {
	case "s3":
		return s3.NewPrefix(root, src.Region)
	default:
		return file.NewTree(root), nil
	}
}

// initMetrics decides the metrics backend: flag → config → env → nop.
func initMetrics(p config.Pipeline, backendFlag, gatewayFlag string, verbose bool) {
	backendName := backendFlag
	if backendName == "" {
		switch p.Metrics.Backend {
		case "prompush":
			backendName = "pushgateway"
		default:
			backendName = p.Metrics.Backend
		}
	}
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}

	switch backendName {
	case "pushgateway":
		gwURL := gatewayFlag
		if gwURL == "" {
			gwURL = p.Metrics.PushgatewayURL
		}
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}

		jobName := p.Job
		if jobName == "" {
			jobName = "playetl"
		}

		b, err := prompush.NewBackend(jobName, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: url=%v, backend=%v, job_name=%v", gwURL, backendName, jobName)
		metrics.SetBackend(b)

	case "datadog":
		addr := p.Metrics.StatsdAddr
		if addr == "" {
			addr = os.Getenv("DD_DOGSTATSD_ADDR")
		}
		if addr == "" {
			addr = "127.0.0.1:8125"
		}
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       addr,
			GlobalTags: []string{"service:playetl"},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: addr=%v, backend=%v", addr, backendName)
		metrics.SetBackend(b)

	case "", "none":
		// metrics disabled; nop backend remains
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(2)
}
