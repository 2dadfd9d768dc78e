package framework

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dosanma1/zonke-cli/pkg/xos"
)

const astroMetadataFile = "zonke-adapter-metadata.json"

// astroNormalizer prepares output produced by the zonke Astro adapter.
type astroNormalizer struct {
	toolbox
}

func (n *astroNormalizer) Framework() Framework {
	return Astro
}

func (n *astroNormalizer) Normalize(ctx context.Context, buildDir string, _ Options) (*Metadata, error) {
	lambda := filepath.Join(buildDir, "lambda")
	server := filepath.Join(buildDir, "server")
	metadataPath := filepath.Join(buildDir, astroMetadataFile)

	if isDir(server) && !xos.Exists(metadataPath) {
		return nil, &NormalizationError{
			Framework: Astro,
			Message:   fmt.Sprintf("%s is missing from output directory. Is the @zonke-cloud/astro-adapter defined in your Astro config?", astroMetadataFile),
		}
	}

	switch {
	case isDir(lambda):
		metadata, err := readAstroMetadata(metadataPath)
		if err != nil {
			return nil, err
		}
		if err := n.prepareBundled(ctx, lambda, metadata); err != nil {
			return nil, err
		}
		return splitLayout(buildDir, lambda), nil

	case isDir(server):
		metadata, err := readAstroMetadata(metadataPath)
		if err != nil {
			return nil, err
		}
		if err := n.prepareUnbundled(ctx, server, metadata); err != nil {
			return nil, err
		}
		return splitLayout(buildDir, server), nil

	default:
		return defaultMetadata(buildDir), nil
	}
}

// prepareBundled installs only the packages the adapter left external.
func (n *astroNormalizer) prepareBundled(ctx context.Context, dir string, metadata gjson.Result) error {
	if err := writeNpmrc(dir); err != nil {
		return fmt.Errorf("failed to write .npmrc: %w", err)
	}

	deps := map[string]string{}
	metadata.Get("adapter.externalPackageVersions").ForEach(func(key, value gjson.Result) bool {
		deps[key.String()] = value.String()
		return true
	})

	manifest, err := json.MarshalIndent(map[string]any{
		"type":         "commonjs",
		"dependencies": deps,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "package.json"), manifest, 0644); err != nil {
		return fmt.Errorf("failed to write package.json: %w", err)
	}

	if err := n.run(ctx, dir, productionEnv, "corepack", "enable", "pnpm"); err != nil {
		return err
	}
	return n.run(ctx, dir, productionEnv, "pnpm", "add", "@rollup/rollup-linux-arm64-gnu")
}

// prepareUnbundled installs the project's full dependency set.
func (n *astroNormalizer) prepareUnbundled(ctx context.Context, dir string, metadata gjson.Result) error {
	if err := writeNpmrc(dir); err != nil {
		return fmt.Errorf("failed to write .npmrc: %w", err)
	}

	root := metadata.Get("astro.root").String()
	if root == "" {
		return &NormalizationError{Framework: Astro, Message: fmt.Sprintf("%s does not name the project root", astroMetadataFile)}
	}

	if err := xos.CopyFile(filepath.Join(localPath(root), "package.json"), filepath.Join(dir, "package.json")); err != nil {
		return &NormalizationError{Framework: Astro, Message: "failed to copy package.json", Err: err}
	}

	return n.run(ctx, dir, productionEnv, "npm", "install")
}

func readAstroMetadata(path string) (gjson.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gjson.Result{}, &NormalizationError{Framework: Astro, Message: "failed to read adapter metadata", Err: err}
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, &NormalizationError{Framework: Astro, Message: fmt.Sprintf("%s is not valid JSON", astroMetadataFile)}
	}
	return gjson.ParseBytes(data), nil
}

// localPath accepts both plain paths and file:// URLs.
func localPath(root string) string {
	if !strings.HasPrefix(root, "file://") {
		return root
	}
	u, err := url.Parse(root)
	if err != nil {
		return strings.TrimPrefix(root, "file://")
	}
	return filepath.FromSlash(u.Path)
}
