package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	findAll      bool
	findVerbose  bool
	findMaxIndex int
)

var findCmd = &cobra.Command{
	Use:   "find <trace-file> <expression>",
	Short: "Search a trace file with a match expression",
	Long: `Search a trace file for the first frame matching the expression and
print it. Expressions compare decoded layer fields:

  "TCP.dst_port == 2049"
  "NFS.argop == 18 and RPC.credential.uid == 0"
  "IP.src in ['192.168.0.10', '192.168.0.11']"
  "NFS.tag == re('^mount')"`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runFind(args[0], args[1])
	},
}

func init() {
	findCmd.Flags().BoolVarP(&findAll, "all", "a", false,
		"print every matching frame, not just the first")
	findCmd.Flags().BoolVarP(&findVerbose, "verbose", "v", false,
		"print every decoded layer of matching frames")
	findCmd.Flags().IntVar(&findMaxIndex, "max-index", -1,
		"stop searching at this frame index (-1 = end of trace)")
}

func runFind(path, expr string) {
	cap := newCapture(path, false)
	defer cap.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	found := false
	for {
		pkt, err := cap.Match(ctx, expr, findMaxIndex)
		if err != nil {
			exitWithError("searching trace", err)
		}
		if pkt == nil {
			break
		}
		found = true
		if findVerbose {
			fmt.Println(pkt)
		} else {
			fmt.Println(pkt.Summary())
		}
		if !findAll {
			return
		}
	}
	if !found {
		fmt.Fprintln(os.Stderr, "no match")
		os.Exit(1)
	}
}
