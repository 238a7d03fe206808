// Command nvim-agentfs is the CLI front end for the agent-safety VFS
// substrate: it loads a mount-table config, serves the metrics
// endpoint, and offers offline inspection of replay logs. Grounded on
// the teacher's top-level `rclone` binary shape — one root
// `*cobra.Command` with leaf subcommands added via `init`, `pflag`-backed
// persistent flags, and `logrus` for all CLI-level logging — the
// rclone source retained in this pack keeps only its subcommands'
// tests, so the root wiring here is original, built in that same shape.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("nvim-agentfs: command failed")
		os.Exit(1)
	}
}
