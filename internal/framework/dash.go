package framework

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const (
	dashVenv   = ".venv-open-dash"
	dashConfig = "open-dash.config.json"
)

// dashConfigFile is the configuration read by open-dash bundle.
type dashConfigFile struct {
	Warmer              bool            `json:"warmer"`
	VenvPath            string          `json:"venv-path"`
	ExportStatic        bool            `json:"export-static"`
	SourcePath          string          `json:"source-path"`
	ExcludedDirectories []string        `json:"excluded-directories"`
	TargetBasePath      string          `json:"target-base-path"`
	Fingerprint         dashFingerprint `json:"fingerprint"`
}

type dashFingerprint struct {
	Version bool   `json:"version"`
	Method  string `json:"method"`
}

// dashNormalizer bundles a Dash app into static assets with open-dash.
type dashNormalizer struct {
	toolbox
}

func (n *dashNormalizer) Framework() Framework {
	return Dash
}

func (n *dashNormalizer) Normalize(ctx context.Context, sourceDir string, _ Options) (*Metadata, error) {
	source, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, err
	}
	parent := filepath.Dir(source)
	venv := filepath.Join(parent, dashVenv)
	configPath := filepath.Join(source, dashConfig)

	defer func() {
		if err := os.RemoveAll(venv); err != nil {
			n.logger.Warn("failed to remove virtualenv", zap.String("path", venv), zap.Error(err))
		}
		if err := os.Remove(configPath); err != nil && !os.IsNotExist(err) {
			n.logger.Warn("failed to remove open-dash config", zap.String("path", configPath), zap.Error(err))
		}
	}()

	config, err := json.MarshalIndent(dashConfigFile{
		VenvPath:            venv,
		ExportStatic:        true,
		SourcePath:          source,
		ExcludedDirectories: []string{},
		TargetBasePath:      parent,
		Fingerprint:         dashFingerprint{Version: true, Method: "last-modified"},
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(configPath, config, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", dashConfig, err)
	}

	if err := n.run(ctx, parent, nil, "python3", "-m", "venv", dashVenv); err != nil {
		return nil, err
	}
	if err := n.run(ctx, venv, nil, filepath.Join(venv, "bin", "pip3"), "install", "open-dash"); err != nil {
		return nil, err
	}
	if err := n.run(ctx, source, nil, filepath.Join(venv, "bin", "open-dash"), "bundle", "--config-path="+dashConfig); err != nil {
		return nil, err
	}

	client := filepath.Join(parent, ".open-dash", "assets")
	return &Metadata{
		ClientDirectory: client,
		HasIndexHTML:    hasIndexHTML(client),
	}, nil
}
