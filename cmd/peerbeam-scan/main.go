// Peerbeam index scanner
//
// Builds or refreshes a folder's index from a local directory:
//
//	peerbeam-scan -folder docs -dir ~/Documents
//	peerbeam-scan -folder docs -dir ~/Documents -watch
//
// The index backend comes from the PEERBEAM_* environment (sqlite by
// default). Other peerbeam commands browse or mount what this writes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/peerbeam/peerbeam/internal/config"
	"github.com/peerbeam/peerbeam/internal/logging"
	"github.com/peerbeam/peerbeam/internal/metrics"
	"github.com/peerbeam/peerbeam/internal/storage"
	"github.com/peerbeam/peerbeam/pkg/scanner"
)

func main() {
	folder := flag.String("folder", "", "Folder ID to index (required)")
	dir := flag.String("dir", "", "Local directory to scan (required)")
	watch := flag.Bool("watch", false, "Keep watching the directory and rescan on changes")
	skipHashes := flag.Bool("skip-hashes", false, "Skip content hashing (faster, weaker change detection)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	if *folder == "" || *dir == "" {
		fmt.Fprintf(os.Stderr, "Error: -folder and -dir are required\n")
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := storage.Options{Backend: cfg.IndexBackend, DSN: cfg.IndexPath}
	if cfg.IndexBackend == "postgres" {
		opts.DSN = cfg.DatabaseURL
	}
	store, err := storage.Open(ctx, opts)
	if err != nil {
		logging.Fatal("opening index store failed", zap.Error(err))
	}
	defer store.Close()

	if cfg.IndexBackend == "memory" {
		logging.Warn("memory backend selected, the index will not outlive this process")
	}

	sc, err := scanner.New(scanner.Config{
		Folder:     *folder,
		Dir:        *dir,
		Store:      store,
		SkipHashes: *skipHashes || !cfg.ScanHashes,
	})
	if err != nil {
		logging.Fatal("scanner init failed", zap.Error(err))
	}

	if !*watch {
		res, err := sc.Scan(ctx)
		if err != nil {
			logging.Fatal("scan failed", zap.Error(err))
		}
		fmt.Printf("Indexed %d entries (%d updated, %d removed)\n",
			res.Indexed, res.Updated, res.Removed)
		if count, err := store.FileCount(ctx, *folder); err == nil {
			fmt.Printf("Folder %q now holds %s records\n", *folder, humanize.Comma(count))
		}
		return
	}

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metrics.Handler(),
		}
		go func() {
			logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("metrics server error", zap.Error(err))
			}
		}()
		defer metricsServer.Close()
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
	}()

	logging.Info("watching for changes",
		zap.String("folder", *folder),
		zap.String("dir", *dir))
	if err := sc.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal("watch failed", zap.Error(err))
	}
}
