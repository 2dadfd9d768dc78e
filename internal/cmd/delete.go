package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dosanma1/zonke-cli/internal/ui"
)

var deleteYes bool

var deleteCmd = &cobra.Command{
	Use:   "delete-environment",
	Short: "Delete the current preview environment and its AWS resources",
	Args:  cobra.NoArgs,
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if !deleteYes {
		var prompter ui.Prompter
		ok, err := prompter.AskConfirm("Delete the preview environment and all of its versions")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("%s %s\n", ui.IconWarning, ui.WarningStyle.Render("Nothing deleted"))
			return nil
		}
	}

	fmt.Printf("%s Deleting environment...\n", ui.IconTrash)
	deleted, err := a.orchestrator.Delete(cmd.Context(), a.store)
	if err != nil {
		return fmt.Errorf("environment deletion failed: %w", err)
	}
	if !deleted {
		fmt.Printf("%s %s\n", ui.IconWarning, ui.WarningStyle.Render("No environment found. Nothing to delete."))
		return nil
	}

	fmt.Printf("%s %s\n", ui.IconSuccess, ui.SuccessStyle.Render("Environment deleted"))
	return nil
}
