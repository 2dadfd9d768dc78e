package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dosanma1/zonke-cli/internal/framework"
	"github.com/dosanma1/zonke-cli/internal/project"
	"github.com/dosanma1/zonke-cli/internal/ui"
)

var initHostedZone string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a Zonké project",
	Long: `Initialize a Zonké project in the current directory.

Prompts for the API credentials found in the Zonké dashboard and for the
project's framework and build layout, creates the preview environment and
writes zonke.yaml and .env.zonke. Both files are added to .gitignore.

Examples:
  zonke init
  zonke init --hosted-zone preview.example.com`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initHostedZone, "hosted-zone", "", "AWS hosted zone name (prompted when empty)")
}

func runInit(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		configPath = filepath.Join(cwd, project.ConfigFile)
	}
	if project.NewStore(configPath).Exists() {
		return fmt.Errorf("%s already exists", configPath)
	}

	fmt.Printf("%s %s\n\n", ui.IconTool, ui.TitleStyle.Render("Initializing Zonké project"))

	var prompter ui.Prompter

	fmt.Println(ui.SubtitleStyle.Render("Credentials"))
	creds, err := promptCredentials(prompter)
	if err != nil {
		return err
	}
	if err := project.SaveCredentials(resolveCredentialsPath(configPath), *creds); err != nil {
		return err
	}

	fmt.Println(ui.SubtitleStyle.Render("Project"))
	cfg, err := promptConfig(prompter)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}

	env, err := a.orchestrator.Initialize(cmd.Context(), a.store, cfg)
	if err != nil {
		return fmt.Errorf("environment initialization failed: %w", err)
	}

	fmt.Printf("\n%s %s\n", ui.IconSuccess, ui.SuccessStyle.Render("Environment initialized"))
	fmt.Printf("   Environment: %s\n", env.EnvironmentID)
	if env.Endpoint != "" {
		fmt.Printf("   Endpoint:    %s\n", ui.URLStyle.Render(env.Endpoint))
	}
	fmt.Printf("\n%s\n", ui.HelpStyle.Render("Run `zonke deploy` to deploy your build."))
	return nil
}

func promptCredentials(p ui.Prompter) (*project.Credentials, error) {
	// Environment variables may already provide both values.
	if creds, err := project.LoadCredentials(resolveCredentialsPath(configPath)); err == nil {
		return creds, nil
	} else if !errors.Is(err, project.ErrNoCredentials) {
		return nil, err
	}

	apiKey, err := p.AskSecret("API key (found in Zonké dashboard)")
	if err != nil {
		return nil, err
	}
	apiToken, err := p.AskSecret("API token (found in Zonké dashboard)")
	if err != nil {
		return nil, err
	}
	return &project.Credentials{
		APIKey:      apiKey,
		APIToken:    apiToken,
		APIEndpoint: os.Getenv(project.EnvAPIEndpoint),
	}, nil
}

func promptConfig(p ui.Prompter) (*project.Config, error) {
	choices := make([]string, 0, len(framework.All()))
	for _, fw := range framework.All() {
		choices = append(choices, string(fw))
	}

	_, selected, err := p.AskSelect("Project frontend framework", choices)
	if err != nil {
		return nil, err
	}

	cfg := &project.Config{
		Framework:     framework.Framework(selected),
		AWSHostedZone: initHostedZone,
	}

	if cfg.AWSHostedZone == "" {
		if cfg.AWSHostedZone, err = p.AskText("AWS hosted zone name", "", ui.Required); err != nil {
			return nil, err
		}
	}
	if cfg.BuildOutputDirectory, err = p.AskText("Build output path", defaultBuildDir(cfg.Framework), ui.Required); err != nil {
		return nil, err
	}

	switch cfg.Framework {
	case framework.Remix, framework.Vue:
		if cfg.PackageJSONPath, err = p.AskText("Path to package.json", "package.json", ui.Required); err != nil {
			return nil, err
		}
	case framework.NextJS:
		if cfg.PublicDirectory, err = p.AskText("Path to public directory", "public", nil); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func defaultBuildDir(fw framework.Framework) string {
	switch fw {
	case framework.NextJS:
		return ".next"
	case framework.Remix, framework.Vue:
		return "build"
	case framework.Dash:
		return "."
	default:
		return "dist"
	}
}
