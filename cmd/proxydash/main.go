package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ChrisColeTech/proxydash"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds daemon connection flags shared by remote commands
type APIFlags struct {
	APIUrl     string
	APIToken   string
	APITimeout string
}

// buildRoot creates the root command with subcommands
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	apiFlags := &APIFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createStatusCommand(apiFlags),
		createLifecycleCommand(apiFlags),
		createConnectionCommand(apiFlags),
		createAlertsCommand(apiFlags),
		createStartCommand(apiFlags),
		createStopCommand(apiFlags),
		createWatchCommand(globalFlags),
		createHashTokenCommand(),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "proxydash",
		Short: "Dashboard daemon for a local AI-model proxy",
		Long: `Proxydash tracks a local AI-model proxy over its event stream and
serves the merged state, lifecycle, and alerts over a REST API.

Examples:
  proxydash serve --config=config.toml          # Start the dashboard daemon
  proxydash status                              # Merged upstream snapshot
  proxydash start                               # Start the proxy via the daemon
  proxydash watch --config=config.toml          # Follow state changes live`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func loadConfig(path string) (proxydash.Config, error) {
	if path == "" {
		return proxydash.DefaultConfig(), nil
	}
	return proxydash.LoadConfig(path)
}
