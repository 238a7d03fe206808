package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/agentvfs/nvim-agentfs/internal/replay"
	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Inspect on-disk replay logs",
}

var replayDumpCmd = &cobra.Command{
	Use:   "dump <log-file>",
	Short: "Print every record in a replay log, one line per call",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplayDump,
}

func init() {
	replayCmd.AddCommand(replayDumpCmd)
	rootCmd.AddCommand(replayCmd)
}

func runReplayDump(cmd *cobra.Command, args []string) error {
	r, err := replay.OpenReader(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	records, err := r.ReadAll()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tOP\tFD\tPATH\tOFFSET\tSIZE\tRET\tERRNO")
	for _, rec := range records {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%d\t%d\t%d\t%s\n",
			rec.Seq, rec.Op, rec.Fd, rec.Path, rec.Offset, rec.Size, rec.Ret, vfscommon.Errno(rec.Errno).Name())
	}
	return w.Flush()
}
