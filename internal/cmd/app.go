package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/dosanma1/zonke-cli/internal/controlplane"
	"github.com/dosanma1/zonke-cli/internal/deploy"
	"github.com/dosanma1/zonke-cli/internal/framework"
	"github.com/dosanma1/zonke-cli/internal/logging"
	"github.com/dosanma1/zonke-cli/internal/project"
	"github.com/dosanma1/zonke-cli/internal/runner"
	"github.com/dosanma1/zonke-cli/internal/upload"
)

// app holds the collaborators shared by every command.
type app struct {
	store        *project.Store
	orchestrator *deploy.Orchestrator
	logger       *zap.Logger
}

func newApp(opts ...deploy.Option) (*app, error) {
	logger := logging.New(verbose, os.Stderr)

	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}
	store := project.NewStore(path)

	creds, err := project.LoadCredentials(resolveCredentialsPath(path))
	if err != nil {
		return nil, err
	}

	endpoint := creds.APIEndpoint
	if endpoint == "" {
		endpoint = controlplane.DefaultEndpoint
	}
	client, err := controlplane.New(endpoint, creds.APIKey, creds.APIToken, controlplane.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	registry := framework.NewDefaultRegistry(runner.NewExecutor(runner.WithLogger(logger)), logger)
	uploader := upload.New(upload.WithLogger(logger), upload.WithProgress(os.Stderr))

	opts = append([]deploy.Option{deploy.WithLogger(logger)}, opts...)
	return &app{
		store:        store,
		orchestrator: deploy.New(client, registry, uploader, opts...),
		logger:       logger,
	}, nil
}

// resolveConfigPath returns --config, or the nearest zonke.yaml found from
// the working directory up, or zonke.yaml in the working directory when
// there is none.
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return filepath.Abs(configPath)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	root, err := findProjectRoot(cwd)
	if errors.Is(err, project.ErrNotInitialized) {
		return filepath.Join(cwd, project.ConfigFile), nil
	}
	if err != nil {
		return "", err
	}
	return filepath.Join(root, project.ConfigFile), nil
}

func resolveCredentialsPath(config string) string {
	if credentialsPath != "" {
		return credentialsPath
	}
	return filepath.Join(filepath.Dir(config), project.CredentialsFile)
}

// findProjectRoot finds the project root by looking for zonke.yaml
func findProjectRoot(dir string) (string, error) {
	for {
		if _, err := os.Stat(filepath.Join(dir, project.ConfigFile)); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", project.ErrNotInitialized
		}
		dir = parent
	}
}
