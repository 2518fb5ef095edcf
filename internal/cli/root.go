// Package cli holds the peerdrop command line: the interactive shell and
// the signaling and relay servers.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/peer-drop/internal/config"
	"github.com/rudransh-shrivastava/peer-drop/internal/logger"
)

var (
	configPath string
	logLevel   string

	cfg *config.Config
	log = logger.NewLogger()
)

var rootCmd = &cobra.Command{
	Use:   "peerdrop",
	Short: "Send files and text directly between peers",
	Long: `peerdrop connects two peers directly and moves files and short
messages between them. Session ids are swapped through an HTTP relay
under a shared key.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		if err := logger.Setup(log, logger.Options{
			Level:      loaded.Log.Level,
			File:       loaded.Log.File,
			MaxSizeMB:  loaded.Log.MaxSizeMB,
			MaxBackups: loaded.Log.MaxBackups,
		}); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return shellCmd.RunE(cmd, args)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./peerdrop.yaml or ~/.peerdrop/peerdrop.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")

	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(signalCmd)
	rootCmd.AddCommand(relayCmd)
	rootCmd.AddCommand(versionCmd)
}
