// Package main provides a one-shot CLI for repinning a single collection.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nft-repin/internal/config"
	"github.com/nft-repin/internal/engine"
	"github.com/nft-repin/internal/indexer"
	"github.com/nft-repin/internal/logging"
	"github.com/nft-repin/internal/pinning"
	"github.com/nft-repin/internal/ratelimit"
	"github.com/nft-repin/internal/retry"
	"github.com/nft-repin/internal/service"
	"github.com/nft-repin/internal/storage"
)

func main() {
	var (
		address  = flag.String("address", "", "Collection creator address")
		provider = flag.String("provider", "", "Pinning provider (see -list-providers)")
		token    = flag.String("token", "", "Provider API token")
		key      = flag.String("key", "", "Provider API key (key/secret providers)")
		secret   = flag.String("secret", "", "Provider API secret (key/secret providers)")
		output   = flag.String("output", "", "Report file path, stdout when empty")
		format   = flag.String("format", "csv", "Report format: csv, json")
		workers  = flag.Int("workers", 0, "Concurrent pin submissions, 0 uses config")
		verify   = flag.Bool("verify", true, "Verify pin status after submission")
		dryRun   = flag.Bool("dry-run", false, "Analyze the collection without pinning")
		list     = flag.Bool("list-providers", false, "Print supported providers and exit")
	)
	flag.Parse()

	if *list {
		for _, name := range pinning.Supported() {
			fmt.Println(name)
		}
		return
	}

	if *address == "" {
		log.Fatal("-address is required")
	}
	if !*dryRun && *provider == "" {
		log.Fatal("-provider is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		logging.ParseFormat(cfg.Logging.Format),
	)
	logging.SetDefault(logger)

	// Cancel the run on Ctrl-C so a partial report can still be written
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fetcher := indexer.NewClient(cfg.Indexer.BaseURL, cfg.Indexer.Timeout)

	if *dryRun {
		if err := analyze(ctx, fetcher, *address); err != nil {
			log.Fatalf("Analysis failed: %v", err)
		}
		return
	}

	engineOpts := engine.Options{
		Workers:        cfg.Engine.Workers,
		PerCallTimeout: cfg.Engine.PerCallTimeout,
		Verify:         *verify,
		Retry: &retry.Policy{
			MaxAttempts:  cfg.Engine.MaxAttempts,
			InitialDelay: cfg.Engine.InitialDelay,
			MaxDelay:     cfg.Engine.MaxDelay,
			Multiplier:   2.0,
		},
	}
	if *workers > 0 {
		engineOpts.Workers = *workers
	}
	if cfg.Engine.RequestsPerSec > 0 {
		engineOpts.RateLimit = ratelimit.New(cfg.Engine.RequestsPerSec, engineOpts.Workers)
	}

	svc := service.NewCollectionService(service.Deps{
		Fetcher:    fetcher,
		Cache:      storage.NewMemoryOutcomeCache(),
		EngineOpts: engineOpts,
	})

	creds := pinning.Credentials{Token: *token, Key: *key, Secret: *secret}
	run, err := svc.StartMigration(ctx, *address, *provider, creds)
	if err != nil {
		log.Fatalf("Failed to start migration: %v", err)
	}

	fmt.Printf("Migrating %d assets (%d unique CIDs, %s topology) to %s\n",
		run.TotalAssets, run.UniqueCIDs, run.Topology, run.Provider)

	if err := svc.Wait(ctx, run.ID); err != nil {
		// Interrupted: cancel the run and wait for workers to settle
		_ = svc.CancelRun(run.ID)
		_ = svc.Wait(context.Background(), run.ID)
	}

	run, err = svc.GetRun(run.ID)
	if err != nil {
		log.Fatalf("Failed to read run result: %v", err)
	}

	fmt.Printf("Run %s: %s\n", run.ID, run.Status)
	fmt.Printf("  pinned:     %d\n", run.Pinned)
	fmt.Printf("  failed:     %d\n", run.Failed)
	fmt.Printf("  skipped:    %d\n", run.Skipped)
	fmt.Printf("  from cache: %d\n", run.FromCache)

	if err := writeReport(svc, run.ID, *output, service.ExportFormat(*format)); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}

	if run.Failed > 0 {
		os.Exit(1)
	}
}

func analyze(ctx context.Context, fetcher *indexer.Client, address string) error {
	svc := service.NewCollectionService(service.Deps{
		Fetcher: fetcher,
		Cache:   storage.NewMemoryOutcomeCache(),
	})
	preview, err := svc.AnalyzeCollection(ctx, address)
	if err != nil {
		return err
	}

	plan := preview.Plan
	fmt.Printf("Collection %s\n", address)
	fmt.Printf("  assets:      %d\n", plan.TotalAssets)
	fmt.Printf("  unique CIDs: %d\n", len(plan.UniqueCIDs))
	fmt.Printf("  skipped:     %d\n", len(plan.SkippedAssetIDs))
	fmt.Printf("  topology:    %s\n", plan.Topology)
	return nil
}

func writeReport(svc *service.CollectionService, runID, output string, format service.ExportFormat) error {
	if output == "" {
		return svc.ExportRun(runID, format, os.Stdout)
	}

	f, err := os.Create(output)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := svc.ExportRun(runID, format, f); err != nil {
		return err
	}
	fmt.Printf("Report written to %s\n", output)
	return nil
}
