package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/profile"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rtype/pkg/config"
	"rtype/pkg/metrics"
	"rtype/pkg/rlog"
	"rtype/pkg/scores"
	"rtype/pkg/server"
	"rtype/pkg/transport"
	rquic "rtype/pkg/transport/quic"
)

const scoreQueueSize = 256

func newServerCmd(configFile *string) *cobra.Command {
	var profileDir string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the authoritative game server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)

			if profileDir != "" {
				defer profile.Start(profile.CPUProfile, profile.ProfilePath(profileDir), profile.NoShutdownHook).Stop()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := runServer(ctx, cfg, logger); err != nil {
				logger.Error("server failed", "error", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&profileDir, "profile", "", "write a CPU profile into this directory")
	return cmd
}

func runServer(ctx context.Context, cfg config.Config, logger rlog.Logger) error {
	id := uuid.New()

	stats, err := metrics.New(cfg.StatsdAddr, []string{"server:" + id.String()}, logger)
	if err != nil {
		return err
	}
	defer stats.Close()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	queue := scores.NewQueue(store, scoreQueueSize, logger)

	conn, err := listen(cfg)
	if err != nil {
		return err
	}
	srv, err := server.New(conn, server.Options{
		TickRate:       cfg.TickRate,
		SessionTimeout: cfg.SessionTimeoutDuration(),
		ReadTimeout:    cfg.ReadTimeoutDuration(),
		MaxEntities:    cfg.MaxEntities,
		MaxPlayers:     cfg.MaxSessions,
		Scores:         queue,
		Metrics:        stats,
		Logger:         logger,
		ID:             id,
	})
	if err != nil {
		conn.Close()
		return err
	}

	// the queue outlives the server so the shutdown records get saved
	queueCtx, stopQueue := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stopQueue()
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return queue.Run(queueCtx)
	})
	err = g.Wait()

	logger.Info("score records", "saved", queue.Saved(), "dropped", queue.Dropped(), "failed", queue.Failed())
	return err
}

func listen(cfg config.Config) (transport.PacketConn, error) {
	switch cfg.Transport {
	case transport.NetworkUDP:
		conn, err := transport.ListenUDP(cfg.ServerAddr)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case transport.NetworkQUIC:
		tlsConf, err := rquic.SelfSignedTLS()
		if err != nil {
			return nil, err
		}
		conn, err := rquic.Listen(cfg.ServerAddr, tlsConf, rquic.Config(cfg.SessionTimeoutDuration()))
		if err != nil {
			return nil, err
		}
		return conn, nil
	default:
		return nil, eris.Wrapf(transport.ErrUnknownNetwork, "%q", cfg.Transport)
	}
}

// openStore connects to redis when an address is configured and falls back
// to memory otherwise.
func openStore(ctx context.Context, cfg config.Config) (scores.Store, func(), error) {
	if cfg.RedisAddr == "" {
		return scores.NewMemoryStore(), func() {}, nil
	}
	store, err := scores.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}
