// Command rtype runs the game server, the terminal client, or prints the
// leaderboard.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
