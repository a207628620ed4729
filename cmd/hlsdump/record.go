package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agleyzer/hlsdump/internal/catalog"
	"github.com/agleyzer/hlsdump/internal/cluster"
	"github.com/agleyzer/hlsdump/internal/config"
	"github.com/agleyzer/hlsdump/internal/parser"
	"github.com/agleyzer/hlsdump/internal/pipeline"
	"github.com/agleyzer/hlsdump/internal/server"
	"github.com/agleyzer/hlsdump/internal/tracker"
)

func addRecordFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("name-prefix", "", "Segment file name prefix (default video-<md5 of url>)")
	f.String("user-agent", config.DefaultUserAgent, "User-Agent sent with every request")
	f.Int("variant", -1, "Variant index to record from a master playlist (default highest bandwidth)")
	f.Int("playlist-attempts", 3, "Consecutive playlist failures before giving up")
	f.Duration("playlist-timeout", parser.DefaultTimeout, "Timeout for one playlist request")
	f.Float64("retry-rate", 0, "Maximum retry attempts per second (0 = unlimited)")
	f.Duration("drain-timeout", 10*time.Second, "Time allowed to finish queued segments after an interrupt")
	f.String("listen", "", "Address for the /health and /metrics server (disabled if empty)")
	f.String("catalog", catalog.DefaultName, "Segment catalog database, relative to the folder (disabled if empty)")
	f.String("raft-id", "", "Raft node ID; enables standby cluster mode")
	f.String("raft-bind", "", "Raft bind address (host:port)")
	f.StringSlice("raft-peers", nil, "Raft peer addresses, including this node")
}

func runRecord(cmd *cobra.Command, args []string) error {
	v := config.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	v.Set("url", args[0])
	v.Set("folder", args[1])

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	logger := newLogger(os.Stdout, cfg.Verbose, cfg.LogFormat)
	logger.Info("hlsdump starting", "version", version, "url", cfg.URL, "folder", cfg.Folder, "prefix", cfg.NamePrefix)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := record(ctx, cfg, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("interrupted")
			return errors.New("interrupted")
		}
		logger.Error("application error", "error", err)
		return err
	}

	logger.Info("hlsdump stopped")
	return nil
}

func record(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := pipeline.PrepareFolder(cfg.Folder); err != nil {
		return err
	}

	client := pipeline.NewHTTPClient(cfg.UserAgent)
	fetcher := parser.New(client, cfg.PlaylistTimeout, cfg.Variant, logger)

	p := pipeline.New(pipeline.Config{
		PlaylistURL:      cfg.URL,
		Folder:           cfg.Folder,
		NamePrefix:       cfg.NamePrefix,
		PlaylistAttempts: cfg.PlaylistAttempts,
		DrainTimeout:     cfg.DrainTimeout,
		RetryRate:        cfg.RetryRate,
	}, client, fetcher, logger)

	runID := uuid.NewString()
	if cfg.Catalog != "" {
		cat, err := catalog.Open(cfg.Catalog)
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		defer cat.Close()
		runID = cat.RunID()
		p.SetRecorder(cat)
		logger.Info("cataloguing segments", "path", cfg.Catalog, "run", runID)
	}

	var mgr *cluster.Manager
	if cfg.Clustered() {
		var err error
		mgr, err = cluster.NewManager(cfg.ClusterConfig(), logger)
		if err != nil {
			return err
		}
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("start cluster: %w", err)
		}
		defer mgr.Shutdown()
		p.SetCheckpointer(mgr)
	}

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	g, gctx := errgroup.WithContext(serverCtx)

	if cfg.Listen != "" {
		srv := server.New(server.StatusFunc(func() server.Report {
			role := server.RoleStandalone
			if mgr != nil {
				role = server.RoleFollower
				if mgr.IsLeader() {
					role = server.RoleLeader
				}
			}
			return server.Report{
				Stats:     p.Stats(),
				Epoch:     p.Epoch(),
				Role:      role,
				Recording: p.Recording(),
				RunID:     runID,
			}
		}), cfg.Listen, logger)
		g.Go(func() error { return srv.Start(gctx) })
	}

	g.Go(func() error {
		defer stopServer()
		if mgr != nil {
			return p.RunStandby(gctx, mgr)
		}
		return p.Run(gctx, tracker.New())
	})

	return g.Wait()
}
