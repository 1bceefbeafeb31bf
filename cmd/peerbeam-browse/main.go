// Peerbeam index browser
//
// Interactive shell over one folder's index:
//
//	peerbeam-browse -folder docs
//	peerbeam-browse -folder docs -scan ~/Documents
//
// With -scan the directory is indexed first and watched while the shell
// runs, so listings follow what happens on disk. Without it the shell reads
// whatever index the configured backend already holds.
//
// Commands:
//
//	ls              list the current directory
//	cd <name>       enter a directory (".." goes up, "/" paths jump)
//	info <name>     show one entry's index record
//	order <key>     sort listings: alpha, mtime or size
//	pwd             print the current path
//	quit            save the position and exit
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/peerbeam/peerbeam/internal/config"
	"github.com/peerbeam/peerbeam/internal/logging"
	"github.com/peerbeam/peerbeam/internal/storage"
	"github.com/peerbeam/peerbeam/pkg/browser"
	"github.com/peerbeam/peerbeam/pkg/index"
	"github.com/peerbeam/peerbeam/pkg/models"
	"github.com/peerbeam/peerbeam/pkg/paths"
	"github.com/peerbeam/peerbeam/pkg/scanner"
	"github.com/peerbeam/peerbeam/pkg/settings"
)

func main() {
	folder := flag.String("folder", "", "Folder ID to browse (required)")
	startPath := flag.String("path", "", "Starting path (default: last browsed)")
	scanDir := flag.String("scan", "", "Scan this directory into the index first and watch it")
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

	if *folder == "" {
		fmt.Fprintf(os.Stderr, "Error: -folder is required\n")
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ident, err := settings.LoadOrGenerateIdentity(cfg.Home)
	if err != nil {
		logging.Fatal("loading device identity failed", zap.Error(err))
	}
	reg, err := settings.Open(cfg.Home)
	if err != nil {
		logging.Fatal("loading settings failed", zap.Error(err))
	}
	logging.Info("peerbeam index browser",
		zap.String("device_id", ident.DeviceID.Short()),
		zap.String("folder", *folder))

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

	bcfg := browser.Config{
		Folder:        *folder,
		Repository:    store,
		Changes:       changes,
		CacheTTL:      cfg.CacheTTL,
		SweepInterval: cfg.SweepInterval,
		IncludeParent: true,
	}

	start := *startPath
	if start == "" {
		start = reg.LastPath(*folder)
	}
	b, err := browser.NewAtNearestPath(ctx, bcfg, start)
	if err != nil {
		logging.Warn("saved path is gone, starting at the root",
			zap.String("path", start),
			zap.Error(err))
		if b, err = browser.New(bcfg); err != nil {
			logging.Fatal("browser init failed", zap.Error(err))
		}
	}
	defer b.Close()

	b.OnPathChanged(func() {
		logging.Debug("caches warmed around current path")
	})

	repl(ctx, b, reg)
}

func repl(ctx context.Context, b *browser.Browser, reg *settings.Manager) {
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("peerbeam:%s> ", b.CurrentPath())
		if !in.Scan() {
			fmt.Println()
			break
		}
		fields := strings.Fields(in.Text())
		if len(fields) == 0 {
			continue
		}

		cmd, args := fields[0], fields[1:]
		switch cmd {
		case "ls":
			cmdList(ctx, b)
		case "cd":
			cmdEnter(ctx, b, args)
		case "info":
			cmdInfo(ctx, b, args)
		case "order":
			cmdOrder(b, args)
		case "pwd":
			fmt.Println(b.CurrentPath())
		case "help":
			fmt.Println("commands: ls, cd <name>, info <name>, order <alpha|mtime|size>, pwd, quit")
		case "quit", "exit":
			if err := reg.SetLastPath(b.Folder(), b.CurrentPath()); err != nil {
				logging.Warn("saving last path failed", zap.Error(err))
			}
			return
		default:
			fmt.Printf("unknown command %q (try \"help\")\n", cmd)
		}
	}

	if err := reg.SetLastPath(b.Folder(), b.CurrentPath()); err != nil {
		logging.Warn("saving last path failed", zap.Error(err))
	}
}

func cmdList(ctx context.Context, b *browser.Browser) {
	recs, err := b.ListFiles(ctx)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	for _, rec := range recs {
		kind := "-"
		if rec.IsDir {
			kind = "d"
		}
		fmt.Printf("%s %10s  %-16s  %s\n", kind, fmtSize(rec), fmtTime(rec), rec.Name)
	}
	fmt.Printf("%d entries\n", len(recs))
}

func cmdEnter(ctx context.Context, b *browser.Browser, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: cd <name>")
		return
	}
	target := args[0]

	var err error
	switch {
	case paths.IsParent(target):
		err = b.NavigateTo(ctx, models.ParentRecord(b.Folder()))
	case strings.HasPrefix(target, paths.Separator):
		err = b.NavigateToPath(ctx, target)
	default:
		rec, ok := findByName(ctx, b, target)
		if !ok {
			fmt.Printf("no such entry: %s\n", target)
			return
		}
		err = b.NavigateTo(ctx, rec)
	}
	if err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

func cmdInfo(ctx context.Context, b *browser.Browser, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: info <name>")
		return
	}
	target := args[0]
	if !strings.HasPrefix(target, paths.Separator) {
		target = paths.Join(b.CurrentPath(), target)
	}

	rec, err := b.FileInfo(ctx, target)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	fmt.Printf("path:     %s\n", rec.Path)
	if rec.IsDir {
		fmt.Printf("type:     directory\n")
	} else {
		fmt.Printf("type:     file\n")
		fmt.Printf("size:     %s (%d bytes)\n", fmtSize(rec), rec.Size)
		fmt.Printf("blocks:   %d\n", rec.BlockCount)
		if rec.Hash != "" {
			fmt.Printf("hash:     %s\n", rec.Hash)
		}
	}
	fmt.Printf("modified: %s\n", fmtTime(rec))
	fmt.Printf("version:  %d\n", rec.Version)
}

func cmdOrder(b *browser.Browser, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: order <alpha|mtime|size>")
		return
	}
	switch args[0] {
	case "alpha":
		b.SetOrdering(browser.AlphabeticalDirsFirst)
	case "mtime":
		b.SetOrdering(browser.LastModifiedFirst)
	case "size":
		b.SetOrdering(browser.LargestFirst)
	default:
		fmt.Printf("unknown ordering %q\n", args[0])
		return
	}
	fmt.Printf("ordering: %s\n", args[0])
}

// findByName resolves a name against the current listing, the way a user
// reading the ls output would.
func findByName(ctx context.Context, b *browser.Browser, name string) (models.FileRecord, bool) {
	recs, err := b.ListFiles(ctx)
	if err != nil {
		return models.FileRecord{}, false
	}
	for _, rec := range recs {
		if rec.Name == name {
			return rec, true
		}
	}
	return models.FileRecord{}, false
}

func fmtSize(rec models.FileRecord) string {
	if rec.IsDir {
		return "-"
	}
	return humanize.Bytes(uint64(rec.Size))
}

func fmtTime(rec models.FileRecord) string {
	if rec.ModTime.IsZero() {
		return "-"
	}
	return rec.ModTime.Format("2006-01-02 15:04")
}
