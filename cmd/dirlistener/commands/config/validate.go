package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dirlistener/dirlistener/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the dirlistener configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  dirlistener config validate

  # Validate specific config file
  dirlistener config validate --config /etc/dirlistener/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if cfg.Admin.SecretHash == "" {
		warnings = append(warnings, "no admin secret configured - the admin HTTP surface will reject every login")
	}
	if cfg.API.Enabled && cfg.Admin.JWTSecret == "" {
		warnings = append(warnings, "admin.jwt_secret is empty - run 'dirlistener init' to generate one")
	}
	if len(cfg.Handler.ModuleDirs) == 0 {
		warnings = append(warnings, "no handler module directories configured - no side effects will ever run")
	}

	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Data dir:        %s\n", cfg.DataDir)
	fmt.Printf("  Notifier:        %s\n", cfg.Notifier.Address)
	fmt.Printf("  Directory:       %s (base %s)\n", cfg.Directory.Address, cfg.Directory.BaseDN)
	fmt.Printf("  Module dirs:     %v\n", cfg.Handler.ModuleDirs)
	fmt.Printf("  Transaction log: %t\n", cfg.Txlog.Enabled)
	fmt.Printf("  Admin API:       %t (%s)\n", cfg.API.Enabled, cfg.API.Address)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
