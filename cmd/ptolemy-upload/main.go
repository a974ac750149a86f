// Package main is the entry point for the Ptolemy Upload CLI.
// Ptolemy Upload signs and uploads files to S3-compatible object stores with
// a built-in SigV4 signer instead of a vendor SDK.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/prn-tf/ptolemy-upload/internal/config"
	"github.com/prn-tf/ptolemy-upload/internal/metrics"
	"github.com/prn-tf/ptolemy-upload/internal/payload"
	"github.com/prn-tf/ptolemy-upload/internal/service"
	"github.com/prn-tf/ptolemy-upload/internal/sigv4"
	"github.com/prn-tf/ptolemy-upload/internal/transport"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath   = flag.String("config", "", "path to config file")
		bucket       = flag.String("bucket", "", "target bucket (overrides config)")
		key          = flag.String("key", "", "object key (single file only; defaults to the file name)")
		contentType  = flag.String("content-type", "", "content type (overrides config)")
		storageClass = flag.String("storage-class", "", "storage class, e.g. STANDARD (overrides config)")
		workers      = flag.Int("workers", 0, "concurrent uploads in batch mode (overrides config)")
		showVersion  = flag.Bool("version", false, "print version information")
	)
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Printf("Ptolemy Upload\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		return 0
	}

	files := flag.Args()
	if len(files) == 0 {
		printUsage()
		return 1
	}
	if *key != "" && len(files) > 1 {
		fmt.Fprintln(os.Stderr, "-key can only be used with a single file")
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	setupLogger(cfg.Logging)

	targetBucket := cfg.Endpoint.Bucket
	if *bucket != "" {
		targetBucket = *bucket
	}
	if targetBucket == "" {
		log.Error().Msg("no target bucket: set endpoint.bucket or pass -bucket")
		return 1
	}
	if *storageClass != "" {
		cfg.Upload.StorageClass = *storageClass
	}
	if *contentType != "" {
		cfg.Upload.ContentType = *contentType
	}
	if *workers > 0 {
		cfg.Upload.Workers = *workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		m = metrics.New(registry)
		go serveMetrics(cfg.Metrics, registry)
	}

	signerOpts := []sigv4.Option{sigv4.WithKeyCache()}
	if m != nil {
		signerOpts = append(signerOpts, sigv4.WithObserver(m))
	}
	signer, err := sigv4.NewSigner(sigv4.Credentials{
		AccessKeyID:     cfg.Auth.AccessKeyID,
		SecretAccessKey: cfg.Auth.SecretAccessKey,
	}, cfg.Auth.Region, cfg.Auth.Service, signerOpts...)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize signer")
		return 1
	}
	defer signer.Close()

	client := transport.NewClient(cfg.Upload.Timeout, log.Logger)

	uploads, err := service.NewUploadService(signer, client,
		service.UploadServiceConfig{Endpoint: cfg.Endpoint.URL}, m, log.Logger)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize upload service")
		return 1
	}

	inputs := make([]service.UploadInput, len(files))
	for i, file := range files {
		objectKey := filepath.Base(file)
		if *key != "" {
			objectKey = *key
		}
		inputs[i] = service.UploadInput{
			Bucket:       targetBucket,
			Key:          objectKey,
			Source:       payload.NewFileSource(file),
			ContentType:  cfg.Upload.ContentType,
			StorageClass: cfg.Upload.StorageClass,
		}
	}

	results := uploads.UploadBatch(ctx, inputs, cfg.Upload.Workers)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			log.Error().Err(r.Err).Str("file", r.Input.Source.Name()).Msg("upload failed")
		}
	}
	if failed > 0 {
		log.Error().Int("failed", failed).Int("total", len(results)).Msg("finished with failures")
		return 1
	}

	log.Info().Int("uploaded", len(results)).Msg("all uploads complete")
	return 0
}

// setupLogger configures the global zerolog logger.
func setupLogger(cfg config.LoggingConfig) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: cfg.TimeFormat})
	}
}

// serveMetrics exposes the Prometheus endpoint for the lifetime of the run.
func serveMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", cfg.Port)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("metrics server stopped")
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Ptolemy Upload

Usage:
  ptolemy-upload [flags] <file> [<file>...]

Flags:
  -config <path>          Path to config file (default: ./config.yaml, ./configs, /etc/ptolemy)
  -bucket <name>          Target bucket
  -key <key>              Object key for a single file (default: file name)
  -content-type <type>    Content type for the uploaded objects
  -storage-class <class>  Storage class header value, e.g. STANDARD
  -workers <n>            Concurrent uploads in batch mode
  -version                Print version information

Credentials are read from config or the environment:
  PTOLEMY_AUTH_ACCESS_KEY_ID
  PTOLEMY_AUTH_SECRET_ACCESS_KEY

Examples:
  ptolemy-upload -bucket backups db-2021-01.tar.gz
  ptolemy-upload -bucket reports -key monthly/2021-01.csv report.csv
  ptolemy-upload -bucket media -workers 8 *.jpg`)
}
