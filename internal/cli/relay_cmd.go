package cli

import (
	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/peer-drop/internal/relay"
)

var relayListen string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run a relay for exchanging session ids",
	Long: `Run a small store-and-forward relay. A POST to /<key> stores the body
and the first GET of /<key> returns and removes it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Relay.Listen
		if relayListen != "" {
			addr = relayListen
		}

		ctx, stop := notifyContext(cmd.Context())
		defer stop()

		return relay.NewServer(cfg.Relay.TTL, log).ListenAndServe(ctx, addr)
	},
}

func init() {
	relayCmd.Flags().StringVar(&relayListen, "listen", "", "listen address (default relay.listen)")
}
