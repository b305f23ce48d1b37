package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conduit-mcp/conduit/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the effective configuration as YAML, after defaults and
environment overrides are applied. Secrets are redacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadRaw()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.ApplyDefaults()

		if cfg.Security.ServerToken != "" {
			cfg.Security.ServerToken = "[redacted]"
		}
		if cfg.RateLimit.Redis.Password != "" {
			cfg.RateLimit.Redis.Password = "[redacted]"
		}

		if configFile := config.ConfigFileUsed(); configFile != "" {
			fmt.Fprintf(os.Stderr, "# config file: %s\n", configFile)
		}

		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer func() { _ = enc.Close() }()
		return enc.Encode(cfg)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
