// Peerbeam FUSE mount
//
// Exposes one folder's index as a read-only filesystem:
//
//	peerbeam-mount -folder docs -mount /mnt/docs
//	peerbeam-mount -folder docs -mount /mnt/docs -scan ~/Documents
//
// Only metadata is mounted: directories list and entries stat, but file
// content does not read. With -scan the backing directory is indexed and
// watched while mounted, so the mount follows what happens on disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/peerbeam/peerbeam/internal/config"
	"github.com/peerbeam/peerbeam/internal/logging"
	"github.com/peerbeam/peerbeam/internal/metrics"
	"github.com/peerbeam/peerbeam/internal/storage"
	"github.com/peerbeam/peerbeam/pkg/browser"
	"github.com/peerbeam/peerbeam/pkg/fuse"
	"github.com/peerbeam/peerbeam/pkg/index"
	"github.com/peerbeam/peerbeam/pkg/scanner"
)

func main() {
	folder := flag.String("folder", "", "Folder ID to mount (required)")
	mountPoint := flag.String("mount", "", "Mount point (required)")
	scanDir := flag.String("scan", "", "Scan this directory into the index first and watch it")
	allowOther := flag.Bool("allow-other", false, "Allow other users to access the mount")
	fuseDebug := flag.Bool("fuse-debug", false, "Enable FUSE protocol tracing")
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

	if *folder == "" || *mountPoint == "" {
		fmt.Fprintf(os.Stderr, "Error: -folder and -mount are required\n")
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

	changes := index.NewBroadcaster()

	if *scanDir != "" {
		sc, err := scanner.New(scanner.Config{
			Folder:     *folder,
			Dir:        *scanDir,
			Store:      store,
			Changes:    changes,
			SkipHashes: !cfg.ScanHashes,
		})
		if err != nil {
			logging.Fatal("scanner init failed", zap.Error(err))
		}
		if _, err := sc.Scan(ctx); err != nil {
			logging.Fatal("initial scan failed", zap.Error(err))
		}
		go func() {
			if err := sc.Watch(ctx); err != nil && ctx.Err() == nil {
				logging.Error("watch stopped", zap.Error(err))
			}
		}()
	}

	// The kernel supplies "." and ".." itself, so the browser stays without
	// synthetic parent entries.
	b, err := browser.New(browser.Config{
		Folder:        *folder,
		Repository:    store,
		Changes:       changes,
		CacheTTL:      cfg.CacheTTL,
		SweepInterval: cfg.SweepInterval,
	})
	if err != nil {
		logging.Fatal("browser init failed", zap.Error(err))
	}
	defer b.Close()

	ifs, err := fuse.New(fuse.Config{
		Browser:    b,
		AllowOther: *allowOther,
		Debug:      *fuseDebug,
	})
	if err != nil {
		logging.Fatal("filesystem init failed", zap.Error(err))
	}

	server, err := ifs.Mount(*mountPoint)
	if err != nil {
		logging.Fatal("mount failed", zap.Error(err))
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
		logging.Info("unmounting...")
		cancel()
		if err := server.Unmount(); err != nil {
			logging.Error("unmount failed, is the mount busy?", zap.Error(err))
		}
	}()

	logging.Info("press Ctrl+C to unmount and exit")
	server.Wait()

	snap := ifs.Stats()
	logging.Info("unmounted",
		zap.Int64("lookups", snap.Lookups),
		zap.Int64("dirs_listed", snap.DirsListed),
		zap.Int64("attr_reads", snap.AttrReads),
		zap.Int64("opens_denied", snap.OpensDenied))
}
