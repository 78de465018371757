package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"msigwallet/client/internal/runtime"
)

const shutdownTimeout = 5 * time.Second

func newWatchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live console: redraws every tick and accepts commands on stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), g)
		},
	}
}

func runWatch(ctx context.Context, g *globalFlags) error {
	cfgPath, err := configPath(g)
	if err != nil {
		return err
	}
	// The screen belongs to the console, so logs go to a file next to the config.
	logPath := filepath.Join(filepath.Dir(cfgPath), "msigd.log")

	confirm := newConsoleConfirm(os.Stdout, &sync.Mutex{})
	e, err := openEnv(ctx, g, envOptions{confirm: confirm, logPaths: []string{logPath}})
	if err != nil {
		return err
	}
	defer e.Close()
	wallet, s, err := e.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	c := newConsole(wallet, s, e.keyring, e.logger, confirm)

	tick := time.Duration(e.cfg.Sync.TickMillis) * time.Millisecond
	if tick <= 0 {
		tick = time.Second
	}
	runner := &runtime.Runner{
		Tick:     tick,
		Poll:     time.Duration(e.cfg.Sync.PollSeconds) * time.Second,
		Session:  s,
		Contract: wallet.Address(),
		Topics:   wallet.EventTopics(),
		Names:    wallet.EventName,
		Render:   c.render,
		Logger:   e.logger.Named("runtime"),
	}
	if e.cfg.Sync.WatchLogs {
		runner.Logs = e.gateway
		runner.LogEvery = 3 * tick
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return runner.Run(gctx) })
	grp.Go(func() error { return c.run(gctx, os.Stdin) })
	if addr := e.cfg.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		grp.Go(func() error {
			e.logger.Info("metrics listening", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		grp.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = grp.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
