package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/bundlekit/internal/server"
	"github.com/BaSui01/bundlekit/internal/watch"
	"github.com/BaSui01/bundlekit/scanner"
)

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	common := registerCommonFlags(fs)
	_ = fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	rt := newRuntime(cfg)
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if rt.registry != nil && cfg.Metrics.ListenAddr != "" {
		srv := server.NewManager(server.MetricsHandler(rt.registry), server.DefaultConfig(cfg.Metrics.ListenAddr), rt.logger)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() { _ = srv.Shutdown(context.Background()) }()
		go func() {
			select {
			case err := <-srv.Errors():
				rt.logger.Error("metrics endpoint stopped", zap.Error(err))
				stop()
			case <-ctx.Done():
			}
		}()
	}

	pass := func() {
		out, err := rt.sync(ctx)
		if err != nil {
			rt.logger.Error("reconciliation pass failed", zap.Error(err))
			return
		}
		printOutcome(os.Stdout, out)
	}
	pass()

	w := watch.New(watchPaths(rt),
		watch.WithInterval(cfg.Watch.Interval),
		watch.WithDebounce(cfg.Watch.Debounce),
		watch.WithLogger(rt.logger))
	w.Run(ctx, func(events []watch.Event) {
		for _, e := range events {
			rt.logger.Info("change detected", zap.String("path", e.Path), zap.String("op", e.Op.String()))
		}
		pass()
	})

	rt.logger.Info("watch stopped")
	return nil
}

// watchPaths are the package map and every extra root.
func watchPaths(rt *runtime) []string {
	paths := []string{filepath.Join(rt.cfg.VendorPath(), scanner.MapFileName)}
	for _, root := range rt.cfg.Project.ExtraRoots {
		if !filepath.IsAbs(root) {
			root = filepath.Join(rt.cfg.Project.Root, root)
		}
		paths = append(paths, root)
	}
	return paths
}
