package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kbforge/kbindexd/internal/api"
	"github.com/kbforge/kbindexd/internal/daemon"
	"github.com/kbforge/kbindexd/internal/watcher"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the indexing daemon",
		Long: `Start the long-running indexing daemon. It probes the embedder and
vector store, then indexes catalog sources on a fixed interval until
interrupted. The admin HTTP server and the file watcher run alongside
the indexing loop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := buildStack(ctx, true)
			if err != nil {
				return err
			}
			defer s.Close()

			lock := daemon.NewFileLock(s.cfg.DataDir)
			held, err := lock.TryLock()
			if err != nil {
				return err
			}
			if !held {
				return fmt.Errorf("another kbindexd instance holds %s", lock.Path())
			}
			defer func() { _ = lock.Unlock() }()

			if err := s.orch.Initialize(ctx); err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return s.orch.Run(ctx) })

			if addr := s.cfg.Server.Addr; addr != "" {
				srv := api.NewServer(addr, s.health, s.orch.Progress(), s.orch.Trigger, s.metrics, s.logger)
				g.Go(func() error { return srv.Run(ctx) })
			}

			if s.cfg.Watch.Enabled {
				w, err := watcher.New(s.catalog, s.orch.Trigger, s.logger, s.cfg.Watch.DebounceDuration())
				if err != nil {
					return err
				}
				g.Go(func() error { return w.Run(ctx) })
			}

			s.logger.Info("kbindexd started",
				"data_dir", s.cfg.DataDir,
				"addr", s.cfg.Server.Addr,
				"interval", s.cfg.Indexing.Interval)

			return g.Wait()
		},
	}
}
