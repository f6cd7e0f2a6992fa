// Package commands implements the dirlistener CLI command tree.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/dirlistener/dirlistener/cmd/dirlistener/commands/config"
)

var (
	// Version information, injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "dirlistener",
	Short: "Directory Listener - ordered directory change replication agent",
	Long: `dirlistener tails an authoritative directory service's change log,
materializes a local shadow copy of directory entries, and drives a
registered set of handler modules that project each change onto local
side-effects (file generation, service reconfiguration, secondary
databases, replication to peer stores).

Use "dirlistener [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command, exposed for tests.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dirlistener/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(quarantineCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global --config flag.
func GetConfigFile() string {
	return cfgFile
}
