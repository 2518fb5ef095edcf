package cli

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/peer-drop/internal/signal"
)

var signalListen string

var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Run the WebRTC signaling server",
	Long:  `Run the websocket server that hands out session ids and forwards offers and answers between peers.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Signal.Listen
		if signalListen != "" {
			addr = signalListen
		}

		ctx, stop := notifyContext(cmd.Context())
		defer stop()

		return signal.NewServer(log).ListenAndServe(ctx, addr)
	},
}

func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return ossignal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func init() {
	signalCmd.Flags().StringVar(&signalListen, "listen", "", "listen address (default signal.listen)")
}
