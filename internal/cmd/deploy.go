package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dosanma1/zonke-cli/internal/archive"
	"github.com/dosanma1/zonke-cli/internal/deploy"
	"github.com/dosanma1/zonke-cli/internal/ui"
	"github.com/dosanma1/zonke-cli/internal/watch"
)

var (
	deployMessage    string
	deployVersion    string
	deployWatch      bool
	deployNoCompress bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the build output to the preview environment",
	Long: `Deploy the project's build output to its preview environment.

The build output is prepared for the configured framework, packaged and
uploaded, and the new version is recorded in zonke.yaml. The environment is
created on the first deploy when zonke.yaml has none.

Passing --version redeploys a version recorded in zonke.yaml instead.

Examples:
  zonke deploy                          # Deploy the current build
  zonke deploy -m "fix checkout"        # Attach a message to the deployment
  zonke deploy -v 3HL4kqtJlcpXroDTDmJ   # Redeploy a previous version
  zonke deploy --watch                  # Redeploy whenever the build changes`,
	Args: cobra.NoArgs,
	RunE: runDeploy,
}

func init() {
	rootCmd.AddCommand(deployCmd)
	deployCmd.Flags().StringVarP(&deployMessage, "message", "m", "", "A message to attach to the deployment")
	deployCmd.Flags().StringVarP(&deployVersion, "version", "v", deploy.LatestVersion, "The version of the project to deploy")
	deployCmd.Flags().BoolVarP(&deployWatch, "watch", "w", false, "Redeploy when the build output changes")
	deployCmd.Flags().BoolVar(&deployNoCompress, "no-compress", false, "Store client and server archives without compression")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	if deployWatch && deployVersion != deploy.LatestVersion {
		return fmt.Errorf("--watch cannot be combined with --version")
	}

	var opts []deploy.Option
	if deployNoCompress {
		opts = append(opts, deploy.WithCompression(archive.LevelStore))
	}

	a, err := newApp(opts...)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if deployVersion != deploy.LatestVersion {
		fmt.Printf("%s Redeploying version %s...\n", ui.IconRocket, deployVersion)
		result, err := a.orchestrator.Revert(ctx, a.store, deployVersion)
		if err != nil {
			return fmt.Errorf("deployment failed: %w", err)
		}
		printDeployed(result)
		return nil
	}

	if err := deployOnce(ctx, a); err != nil {
		return err
	}
	if !deployWatch {
		return nil
	}
	return watchAndDeploy(ctx, a)
}

func deployOnce(ctx context.Context, a *app) error {
	fmt.Printf("%s Triggering environment deployment...\n", ui.IconRocket)

	result, err := a.orchestrator.Deploy(ctx, a.store, deployMessage)
	if err != nil {
		return fmt.Errorf("deployment failed: %w", err)
	}
	printDeployed(result)
	return nil
}

func watchAndDeploy(ctx context.Context, a *app) error {
	cfg, err := a.store.Load()
	if err != nil {
		return err
	}

	buildDir := cfg.BuildOutputDirectory
	if !filepath.IsAbs(buildDir) {
		buildDir = filepath.Join(filepath.Dir(a.store.Path()), buildDir)
	}

	w, err := watch.New(watch.DefaultConfig(buildDir), a.logger)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", buildDir, err)
	}
	defer w.Close()

	fmt.Printf("\n%s Watching %s for changes (Ctrl+C to stop)\n", ui.IconWatch, buildDir)

	err = w.Run(ctx, func(ctx context.Context, change watch.Change) error {
		a.logger.Debug("build output changed", zap.Strings("paths", change.Paths))
		fmt.Printf("\n%s Build output changed (%d files)\n", ui.IconPackage, len(change.Paths))
		if err := deployOnce(ctx, a); err != nil {
			fmt.Printf("%s %s\n", ui.IconError, ui.ErrorStyle.Render(err.Error()))
			return err
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printDeployed(result *deploy.Result) {
	fmt.Printf("%s %s\n", ui.IconSuccess, ui.SuccessStyle.Render("Deployment triggered successfully"))
	fmt.Printf("   Version: %s\n", result.Version.VersionID)
	if result.Version.Message != "" {
		fmt.Printf("   Message: %s\n", result.Version.Message)
	}
	if result.Endpoint != "" {
		fmt.Printf("   URL:     %s\n", ui.URLStyle.Render(result.Endpoint))
	}
	fmt.Printf("%s\n", ui.HelpStyle.Render("Run `zonke deployment-status` to follow the deployment."))
}
