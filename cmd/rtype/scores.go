package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"rtype/pkg/config"
	"rtype/pkg/scores"
)

func newScoresCmd(configFile *string) *cobra.Command {
	var top int
	var player string

	cmd := &cobra.Command{
		Use:   "scores",
		Short: "Print the leaderboard kept in redis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			if cfg.RedisAddr == "" {
				return eris.New("RTYPE_REDIS_ADDR is not set")
			}

			ctx := cmd.Context()
			store, err := scores.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword)
			if err != nil {
				return err
			}
			defer store.Close()

			out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer out.Flush()

			if player != "" {
				stats, err := store.Stats(ctx, player)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "player\tgames\tplaytime\tkills\tbest\n")
				fmt.Fprintf(out, "%s\t%d\t%s\t%d\t%d\n", player, stats.GamesPlayed, stats.Playtime, stats.Kills, stats.Best)
				return nil
			}

			entries, err := store.Top(ctx, top)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "rank\tplayer\tscore\n")
			for i, e := range entries {
				fmt.Fprintf(out, "%d\t%s\t%d\n", i+1, e.Player, e.Score)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of leaderboard entries")
	cmd.Flags().StringVar(&player, "player", "", "print the stats of one player instead")
	return cmd
}
