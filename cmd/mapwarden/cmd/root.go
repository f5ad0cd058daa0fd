// Package cmd provides the CLI commands for mapwarden.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mapwarden/mapwarden/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mapwarden",
	Short: "Mapwarden - calendar-gated map access server",
	Long: `Mapwarden gates access to protected map routes behind scheduled
calendar sessions. Visitors can only log in while one of their booked
session windows is open; admins bypass the window entirely.

Quick start:
  1. Create a config file: mapwarden.yaml
  2. Generate the passphrase hash: mapwarden hash-password "the passphrase"
  3. Run: mapwarden serve

Configuration:
  Config is loaded from mapwarden.yaml in the current directory,
  $HOME/.mapwarden/, or /etc/mapwarden/.

  Environment variables can override config values with the MAPWARDEN_ prefix.
  Example: MAPWARDEN_AUTH_SECRET=...

Commands:
  serve          Start the HTTP server
  hash-password  Generate an Argon2id hash for a password or passphrase
  version        Print version information`,
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mapwarden.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
