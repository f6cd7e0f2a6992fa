package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dirlistener/dirlistener/internal/cli/prompt"
	"github.com/dirlistener/dirlistener/pkg/api/auth"
	"github.com/dirlistener/dirlistener/pkg/config"
)

var (
	initForce          bool
	initNonInteractive bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Initialize a dirlistener configuration file.

By default this runs an interactive wizard asking for the notifier
address, the authoritative directory's address and base DN, the local
data directory, and the admin HTTP surface's bootstrap secret. Pass
--non-interactive to write a config file with documented defaults
instead, which you can then edit by hand or with 'dirlistener config
edit'.

Examples:
  # Interactive wizard
  dirlistener init

  # Non-interactive, all defaults
  dirlistener init --non-interactive

  # Force overwrite an existing config file
  dirlistener init --force --config /etc/dirlistener/config.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	initCmd.Flags().BoolVar(&initNonInteractive, "non-interactive", false, "Skip prompts and write documented defaults")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if !initForce {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", configPath)
		}
	}

	cfg := config.GetDefaultConfig()

	if initNonInteractive {
		fmt.Println("Writing default configuration (no admin secret configured).")
		fmt.Println("The admin HTTP surface will reject every login until you set admin.secret_hash.")
	} else {
		if err := runInitWizard(cfg); err != nil {
			if prompt.IsAborted(err) {
				fmt.Println("\nAborted.")
				return nil
			}
			return err
		}
	}

	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("\nConfiguration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Review and, if needed, edit the configuration file:")
	fmt.Printf("       dirlistener config edit --config %s\n", configPath)
	fmt.Println("  2. Start the listener:")
	fmt.Printf("       dirlistener start --config %s\n", configPath)
	if cfg.Admin.SecretHash == "" {
		fmt.Println("\nNote: no admin secret was configured. The admin HTTP surface is")
		fmt.Println("reachable but every login will be rejected until you set one.")
	}

	return nil
}

func runInitWizard(cfg *config.Config) error {
	var err error

	fmt.Println("Directory Listener setup")
	fmt.Println("=========================")

	cfg.DataDir, err = prompt.Input("Data directory", cfg.DataDir)
	if err != nil {
		return err
	}

	cfg.Notifier.Address, err = prompt.InputRequired("Notifier address (host:port)")
	if err != nil {
		return err
	}

	cfg.Directory.Address, err = prompt.Input("Directory LDAP URL", cfg.Directory.Address)
	if err != nil {
		return err
	}
	cfg.Directory.BaseDN, err = prompt.InputRequired("Directory base DN")
	if err != nil {
		return err
	}

	useKerberos, err := prompt.Confirm("Bind to the directory using Kerberos/GSSAPI instead of simple bind?", false)
	if err != nil {
		return err
	}
	if useKerberos {
		cfg.Directory.Kerberos.Enabled = true
		cfg.Directory.Kerberos.ServicePrincipal, err = prompt.InputRequired("Kerberos service principal")
		if err != nil {
			return err
		}
		cfg.Directory.Kerberos.KeytabPath, err = prompt.InputRequired("Path to keytab file")
		if err != nil {
			return err
		}
	} else {
		cfg.Directory.BindDN, err = prompt.InputOptional("Directory bind DN")
		if err != nil {
			return err
		}
		if cfg.Directory.BindDN != "" {
			cfg.Directory.BindPassword, err = prompt.Password("Directory bind password")
			if err != nil {
				return err
			}
		}
	}

	moduleDir, err := prompt.Input("Handler module directory", cfg.Handler.ModuleDirs[0])
	if err != nil {
		return err
	}
	cfg.Handler.ModuleDirs = []string{moduleDir}

	cfg.Txlog.Enabled, err = prompt.Confirm("Write a transaction log for downstream tailers?", cfg.Txlog.Enabled)
	if err != nil {
		return err
	}

	enableAdmin, err := prompt.Confirm("Enable the admin HTTP surface (status, quarantine clear)?", cfg.API.Enabled)
	if err != nil {
		return err
	}
	cfg.API.Enabled = enableAdmin
	if enableAdmin {
		cfg.API.Address, err = prompt.Input("Admin HTTP listen address", cfg.API.Address)
		if err != nil {
			return err
		}

		secret, err := prompt.PasswordWithConfirmation(
			fmt.Sprintf("Admin secret (min %d chars)", auth.MinSecretLength),
			"Confirm admin secret",
			auth.MinSecretLength,
		)
		if err != nil {
			return err
		}

		hash, err := auth.HashSecret(secret)
		if err != nil {
			return err
		}
		cfg.Admin.SecretHash = hash
		cfg.Admin.JWTSecret, err = generateJWTSecret()
		if err != nil {
			return err
		}
	}

	return nil
}

// generateJWTSecret produces a 32-byte, hex-encoded signing key for the
// admin bearer-token service, matching the entropy `openssl rand -hex 32`
// would give.
func generateJWTSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate JWT secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
