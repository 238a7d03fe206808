package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "nvim-agentfs",
	Short: "Agent-safety filesystem substrate for a Neovim-embedded agent",
	Long: `nvim-agentfs serves the mount table an embedded agent sees as its
filesystem, verifying every mutating run through record/replay before
letting its effects stick.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			level = log.InfoLevel
		}
		log.SetLevel(level)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: trace|debug|info|warn|error")
}
