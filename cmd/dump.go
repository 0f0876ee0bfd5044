package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"nfscap.xyz/nfscap/internal/core"
	"nfscap.xyz/nfscap/pkg/capture"
)

var (
	dumpLive    bool
	dumpVerbose bool
	dumpMax     int
)

var dumpCmd = &cobra.Command{
	Use:   "dump <trace-file>",
	Short: "Print the decoded frames of a trace file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runDump(args[0])
	},
}

func init() {
	dumpCmd.Flags().BoolVar(&dumpLive, "live", false,
		"tail a growing or rotating trace file")
	dumpCmd.Flags().BoolVarP(&dumpVerbose, "verbose", "v", false,
		"print every decoded layer instead of one line per frame")
	dumpCmd.Flags().IntVar(&dumpMax, "max", 0,
		"stop after this many frames (0 = all)")
}

func runDump(path string) {
	cap := newCapture(path, dumpLive)
	defer cap.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	count := 0
	for dumpMax == 0 || count < dumpMax {
		pkt, err := cap.Next(ctx)
		if errors.Is(err, core.ErrEndOfTrace) || errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			exitWithError("reading trace", err)
		}
		if dumpVerbose {
			fmt.Println(pkt)
		} else {
			fmt.Println(pkt.Summary())
		}
		count++
	}
}

func newCapture(path string, live bool) *capture.Capture {
	return capture.New(path, capture.Config{
		Logger:           newLogger(),
		Live:             live,
		PollInterval:     viper.GetDuration("live.poll_interval"),
		PendingCallBound: viper.GetUint64("rpc.pending_call_bound"),
		PendingCallTTL:   viper.GetDuration("rpc.pending_call_ttl"),
	})
}
