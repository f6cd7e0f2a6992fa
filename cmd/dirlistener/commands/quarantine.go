package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dirlistener/dirlistener/internal/cli/prompt"
	"github.com/dirlistener/dirlistener/pkg/config"
	"github.com/dirlistener/dirlistener/pkg/supervisor"
)

var quarantineForce bool

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Inspect or clear the failed-replay quarantine sentinel",
	Long: `Operate on the quarantine sentinel file the dispatcher halts on when a
prior transaction could not be replayed cleanly (<data_dir>/failed.ldif).

Use "dirlistener quarantine status" to check whether the sentinel is
present, and "dirlistener quarantine clear" to remove it once the
underlying condition has been investigated.`,
}

var quarantineStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the quarantine sentinel is present",
	RunE:  runQuarantineStatus,
}

var quarantineClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the quarantine sentinel",
	Long: `Remove the quarantine sentinel file so the dispatcher resumes processing
on its next transaction.

This does not undo whatever caused the sentinel to be dropped in the
first place; investigate the cause before clearing it.`,
	RunE: runQuarantineClear,
}

func init() {
	quarantineClearCmd.Flags().BoolVarP(&quarantineForce, "force", "f", false, "Skip the confirmation prompt")
	quarantineCmd.AddCommand(quarantineStatusCmd)
	quarantineCmd.AddCommand(quarantineClearCmd)
}

func runQuarantineStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	checker := supervisor.NewQuarantineChecker(cfg.DataDir)
	path := checker.Path()

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Quarantined: yes (%s)\n", path)
		return nil
	}

	fmt.Printf("Quarantined: no (%s not present)\n", path)
	return nil
}

func runQuarantineClear(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	checker := supervisor.NewQuarantineChecker(cfg.DataDir)
	path := checker.Path()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("Nothing to clear: the quarantine sentinel is not present.")
		return nil
	}

	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Remove quarantine sentinel %s?", path), quarantineForce)
	if err != nil {
		if prompt.IsAborted(err) {
			fmt.Println("\nAborted.")
			return nil
		}
		return err
	}
	if !ok {
		fmt.Println("Cancelled.")
		return nil
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove quarantine sentinel: %w", err)
	}

	fmt.Printf("Quarantine sentinel removed: %s\n", path)
	fmt.Println("The dispatcher will resume processing on its next transaction.")
	return nil
}
