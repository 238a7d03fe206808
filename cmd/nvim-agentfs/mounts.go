package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/agentvfs/nvim-agentfs/internal/config"
	"github.com/spf13/cobra"
)

var mountsConfigPath string

var mountsCmd = &cobra.Command{
	Use:   "mounts",
	Short: "List the mounts a config file declares, without starting any backend",
	RunE:  runMounts,
}

func init() {
	mountsCmd.Flags().StringVar(&mountsConfigPath, "config", "", "path to the mount-table YAML config (required)")
	_ = mountsCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(mountsCmd)
}

func runMounts(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(mountsConfigPath)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "MOUNTPOINT\tPERM\tBACKEND\tRECORD")
	for _, m := range cfg.Mounts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", m.Mountpoint, m.Perm, m.Backend.Kind, m.Record)
	}
	return w.Flush()
}
