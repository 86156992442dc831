package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dayuer/castbot/internal/config"
)

// Version is set at build time.
var Version = "dev"

var (
	configPath string
	envFiles   []string
)

var rootCmd = &cobra.Command{
	Use:   "castbot",
	Short: "castbot: Farcaster mention bot driven by Neynar webhooks",
	Long: `castbot receives Neynar cast.created webhooks, verifies and deduplicates
them, and replies to casts that mention the bot account.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadDotEnv(envFiles...)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.castbot/config.yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")
}

// loadConfig reads the config selected by --config.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.GetConfigPath()
}
