package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dosanma1/zonke-cli/internal/controlplane"
	"github.com/dosanma1/zonke-cli/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "deployment-status",
	Short: "Get the status of the latest deployment",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	status, err := a.orchestrator.Status(cmd.Context(), a.store)
	if err != nil {
		return err
	}

	fmt.Printf("%s\n\n", ui.SubtitleStyle.Render("Deployment "+status.SourceVersion))
	fmt.Println(describeStatus(status))

	if env, err := a.orchestrator.Refresh(cmd.Context(), a.store); err != nil {
		a.logger.Warn("failed to refresh environment", zap.Error(err))
	} else if env.Endpoint != "" {
		fmt.Printf("   URL: %s\n", ui.URLStyle.Render(env.Endpoint))
	}
	if status.Status == controlplane.StateFailed {
		return fmt.Errorf("deployment %s failed", status.SourceVersion)
	}
	return nil
}

func describeStatus(status *controlplane.DeploymentStatus) string {
	switch status.Status {
	case controlplane.StateScheduled:
		return fmt.Sprintf("%s %s Please wait a few minutes for the deployment to complete.", ui.IconClock, ui.WarningStyle.Render("Deployment scheduled."))
	case controlplane.StateInProgress:
		return fmt.Sprintf("%s %s Please wait a few minutes for the deployment to complete.", ui.IconClock, ui.WarningStyle.Render("Deployment in progress."))
	case controlplane.StateSuccess:
		return fmt.Sprintf("%s %s", ui.IconSuccess, ui.SuccessStyle.Render("Deployment succeeded!"))
	default:
		msg := fmt.Sprintf("%s %s", ui.IconError, ui.ErrorStyle.Render("Deployment failed."))
		if status.Error != "" {
			msg += " " + status.Error
		}
		return msg
	}
}
