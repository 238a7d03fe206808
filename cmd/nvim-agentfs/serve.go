package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/agentvfs/nvim-agentfs/internal/agent"
	"github.com/agentvfs/nvim-agentfs/internal/config"
	"github.com/agentvfs/nvim-agentfs/internal/metrics"
	"github.com/agentvfs/nvim-agentfs/internal/replay"
	"github.com/agentvfs/nvim-agentfs/internal/vfs"
	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
	"github.com/agentvfs/nvim-agentfs/internal/vfswrite/stage"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	serveConfigPath string
	serveIndexPath  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Build the mount table from a config file and serve its metrics endpoint",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "path to the mount-table YAML config (default: the built-in reference config)")
	serveCmd.Flags().StringVar(&serveIndexPath, "index", "", "path to the replay session index (bbolt file); disabled if empty")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Reference()
	if serveConfigPath != "" {
		loaded, err := config.Load(serveConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	table, err := cfg.BuildTable(buildRegistry())
	if err != nil {
		return err
	}

	v := vfs.New(table)

	if cfg.StagePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.StagePath), 0o700); err != nil {
			return err
		}
		store, err := stage.Open(cfg.StagePath)
		if err != nil {
			return err
		}
		defer store.Close()
		v.SetStage(store)
	}

	env := agent.New(v, cfg.ReplayDir)

	if serveIndexPath != "" {
		idx, err := replay.OpenIndex(serveIndexPath)
		if err != nil {
			return err
		}
		defer idx.Close()
		env.SetIndex(idx)
	}

	result := env.ExecuteVerified(context.Background(), demoCallback)
	log.WithField("accepted", result.Accepted).Info("nvim-agentfs: demonstration agent run finished")

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			log.WithField("addr", cfg.MetricsAddr).Info("nvim-agentfs: serving metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("nvim-agentfs: metrics server exited")
			}
		}()
		defer srv.Close()
	}

	log.WithField("mounts", len(table.Mounts())).Info("nvim-agentfs: mount table ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("nvim-agentfs: shutting down")
	return nil
}

// demoCallback is the sample mutating run `serve` puts through
// execute-verified on startup: it writes one file under /workspace, a
// deterministic effect any fresh mount table accepts, exercising the
// whole snapshot/record/restore/replay/compare pipeline against
// whatever backends the loaded config actually wired up.
func demoCallback(v *vfs.VFS) error {
	ctx := context.Background()
	fd, errno := v.Open(ctx, "/workspace/.nvim-agentfs-selftest", vfscommon.OCreate|vfscommon.OWrite|vfscommon.OTruncate, 0o600)
	if errno != vfscommon.OK {
		return errno
	}
	defer v.Close(ctx, fd)
	if _, errno := v.Write(ctx, fd, []byte("nvim-agentfs self-test\n")); errno != vfscommon.OK {
		return errno
	}
	return nil
}
