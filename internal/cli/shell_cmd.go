package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	transportKind string
	noProgress    bool
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start the interactive shell",
	Long:  `Start the interactive shell. This is also what runs when no command is given.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if transportKind != "" {
			cfg.Transport.Kind = transportKind
		}

		shell, cleanup, err := newShellFromConfig(cfg, log, ShellOptions{
			Out:      os.Stdout,
			Progress: !noProgress,
		})
		if err != nil {
			return err
		}
		defer cleanup()

		shell.Run(cmd.Context())
		return nil
	},
}

func init() {
	shellCmd.Flags().StringVar(&transportKind, "transport", "", "transport to use: webrtc or quic")
	shellCmd.Flags().BoolVar(&noProgress, "no-progress", false, "do not draw progress bars")
}
