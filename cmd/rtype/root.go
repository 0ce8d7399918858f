package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"rtype/pkg/config"
	"rtype/pkg/rlog"
	"rtype/pkg/rlog/zerologadapter"
)

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "rtype",
		Short:        "Networked side-scrolling shooter",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "KEY=VALUE file read before the environment")

	root.AddCommand(
		newServerCmd(&configFile),
		newClientCmd(&configFile),
		newScoresCmd(&configFile),
	)
	return root
}

func newLogger(cfg config.Config, w io.Writer) rlog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerologadapter.NewFromEnv(w, cfg.LogLevel, cfg.LogFormat)
}
