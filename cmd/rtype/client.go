package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"rtype/pkg/client"
	"rtype/pkg/config"
	"rtype/pkg/protocol"
	"rtype/pkg/rlog"
	"rtype/pkg/rlog/slogadapter"
	"rtype/pkg/termview"
	"rtype/pkg/transport"
	rquic "rtype/pkg/transport/quic"
)

const connectTimeout = 10 * time.Second

func newClientCmd(configFile *string) *cobra.Command {
	var name, logFile string

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Join a server and play in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			if name != "" {
				cfg.PlayerName = name
			}

			// the terminal belongs to the view, so logs go to a file or nowhere
			var w io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return eris.Wrapf(err, "open log file %s", logFile)
				}
				defer f.Close()
				w = f
			}
			logger := slogadapter.NewJSON(w, cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := dialClient(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()

			view, err := termview.Open()
			if err != nil {
				return err
			}
			defer view.Close()

			return play(ctx, c, view, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "player name, overrides RTYPE_PLAYER_NAME")
	cmd.Flags().StringVar(&logFile, "log", "", "append logs to this file")
	return cmd
}

func dialClient(ctx context.Context, cfg config.Config, logger rlog.Logger) (*client.Client, error) {
	opts := client.Options{
		Name:          cfg.PlayerName,
		ReadTimeout:   cfg.ReadTimeoutDuration(),
		ServerTimeout: cfg.SessionTimeoutDuration(),
		MaxEntities:   cfg.MaxEntities,
		Logger:        logger,
	}

	switch cfg.Transport {
	case transport.NetworkUDP:
		return client.DialUDP(cfg.ServerTarget, opts)
	case transport.NetworkQUIC:
		conn, err := rquic.Dial(ctx, cfg.ServerTarget, rquic.ClientTLS(true), rquic.Config(cfg.SessionTimeoutDuration()))
		if err != nil {
			return nil, err
		}
		c, err := client.New(conn, conn.RemoteAddr(), opts)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return c, nil
	default:
		return nil, eris.Wrapf(transport.ErrUnknownNetwork, "%q", cfg.Transport)
	}
}

// play runs the frame loop until the player quits, ctx is done or the
// server goes away.
func play(ctx context.Context, c *client.Client, view *termview.View, cfg config.Config, logger rlog.Logger) error {
	status := termview.Status{Name: cfg.PlayerName, Server: c.Server().String()}

	status.State = client.StateConnecting.String()
	view.Draw(nil, status)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := c.Connect(connectCtx); err != nil {
		return err
	}
	go view.Events()

	ticker := time.NewTicker(time.Second / time.Duration(cfg.TickRate))
	defer ticker.Stop()

	var entities []protocol.EntityDescriptor
	var last protocol.InputFlags
	for {
		var now time.Time
		select {
		case <-ctx.Done():
			return nil
		case now = <-ticker.C:
		}
		if view.Quit() {
			return nil
		}

		if _, err := c.Update(now); err != nil {
			return err
		}
		if c.State() != client.StateConnected {
			return eris.Errorf("disconnected by server: %s", c.Reason())
		}

		// idle frames are covered by the heartbeat
		if flags := view.Input(now); flags != 0 || last != 0 {
			if _, err := c.SendInput(flags); err != nil && !errors.Is(err, client.ErrNotConnected) {
				logger.Warn("failed to send input", "error", err)
			}
			last = flags
		}

		entities = c.AppendEntities(entities[:0])
		status.State = c.State().String()
		status.Tick, _ = c.Tick()
		view.Draw(entities, status)
	}
}
