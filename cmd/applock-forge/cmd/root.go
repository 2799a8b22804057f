// Package cmd provides the CLI commands for AppLock Forge.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AppLock-Forge/applockforge/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "applock-forge",
	Short: "AppLock Forge - AppLocker policy construction toolkit",
	Long: `AppLock Forge builds, validates, and simulates Windows AppLocker
application control policies without requiring a Windows machine.

Rules are managed through a local JSON API (or the import/export commands),
validated for structural problems and allow/deny conflicts, and exported as
AppLocker policy XML ready for Group Policy or Intune deployment.

Quick start:
  1. Create a config file: applock-forge.yaml
  2. Run: applock-forge start
  3. Import the baseline rules: curl -X POST localhost:8080/api/import/default-rules

Configuration:
  Config is loaded from applock-forge.yaml in the current directory,
  $HOME/.applock-forge/, or /etc/applock-forge/.

  Environment variables can override config values with the APPLOCK_FORGE_ prefix.
  Example: APPLOCK_FORGE_SERVER_HTTP_ADDR=:9090

Commands:
  start       Start the policy server
  export      Export stored rules as AppLocker policy XML
  import      Import rules from an AppLocker policy XML file
  validate    Validate stored rules and report conflicts
  simulate    Evaluate test cases against stored rules
  hash-key    Generate a hash for an API key
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./applock-forge.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
