// Package cmd provides the CLI commands for conduit.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conduit-mcp/conduit/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "conduit",
	Short: "conduit - session-multiplexing MCP gateway",
	Long: `conduit is an HTTP gateway for Model Context Protocol (MCP) servers.

It admits clients through an origin allow-list, optional bearer auth, and
per-identity rate limiting, then multiplexes their sessions onto an upstream
MCP server over two wire transports: streamable HTTP (/mcp) and SSE (/sse).

Quick start:
  1. Create a config file: conduit.yaml
  2. Run: conduit serve

Configuration:
  Config is loaded from conduit.yaml in the current directory,
  $HOME/.conduit/, or /etc/conduit/.

  Environment variables can override config values with the CONDUIT_ prefix.
  Example: CONDUIT_SERVER_PORT=9090

Commands:
  serve       Start the gateway
  hash-key    Hash a credential for use in config
  config      Inspect the effective configuration
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./conduit.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
