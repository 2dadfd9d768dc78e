package framework

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/dosanma1/zonke-cli/pkg/xos"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var handlerTemplate = template.Must(template.ParseFS(templatesFS, "templates/handler.mjs.tmpl"))

// expressPackages back the generated Lambda handler.
var expressPackages = []string{"compression", "express", "morgan", "@codegenie/serverless-express"}

type handlerData struct {
	Framework    Framework
	ServerModule string
}

// renderHandler writes index.mjs, the Lambda entrypoint wrapping the
// framework's server build in an express app.
func renderHandler(serverDir string, fw Framework) error {
	var buf bytes.Buffer
	if err := handlerTemplate.Execute(&buf, handlerData{Framework: fw, ServerModule: "server.js"}); err != nil {
		return fmt.Errorf("failed to render handler: %w", err)
	}
	return os.WriteFile(filepath.Join(serverDir, "index.mjs"), buf.Bytes(), 0644)
}

// prepareServer copies the project manifest, writes the handler and
// .npmrc, then installs packages into serverDir.
func (t toolbox) prepareServer(ctx context.Context, fw Framework, serverDir string, opts Options, packages []string) error {
	if !isDir(serverDir) {
		return &NormalizationError{Framework: fw, Message: fmt.Sprintf("server build output directory %s does not exist", serverDir)}
	}

	if opts.PackageJSONPath != "" {
		if err := xos.CopyFile(opts.PackageJSONPath, filepath.Join(serverDir, "package.json")); err != nil {
			return &NormalizationError{Framework: fw, Message: "failed to copy package.json", Err: err}
		}
	}

	if err := renderHandler(serverDir, fw); err != nil {
		return err
	}
	if err := writeNpmrc(serverDir); err != nil {
		return fmt.Errorf("failed to write .npmrc: %w", err)
	}

	return t.run(ctx, serverDir, productionEnv, "npm", append([]string{"add"}, packages...)...)
}

// remixNormalizer wraps a Remix server build in an express handler.
type remixNormalizer struct {
	toolbox
}

func (n *remixNormalizer) Framework() Framework {
	return Remix
}

func (n *remixNormalizer) Normalize(ctx context.Context, buildDir string, opts Options) (*Metadata, error) {
	server := filepath.Join(buildDir, "server")

	// The build's own entrypoint becomes the module the handler imports.
	entry := filepath.Join(server, "index.js")
	if xos.Exists(entry) {
		if err := os.Rename(entry, filepath.Join(server, "server.js")); err != nil {
			return nil, &NormalizationError{Framework: Remix, Message: "failed to move server entrypoint", Err: err}
		}
	}

	packages := append([]string{"@remix-run/express"}, expressPackages...)
	if err := n.prepareServer(ctx, Remix, server, opts, packages); err != nil {
		return nil, err
	}

	return splitLayout(buildDir, server), nil
}

// vueNormalizer wraps a Vue SSR render function in an express handler.
type vueNormalizer struct {
	toolbox
}

func (n *vueNormalizer) Framework() Framework {
	return Vue
}

func (n *vueNormalizer) Normalize(ctx context.Context, buildDir string, opts Options) (*Metadata, error) {
	server := filepath.Join(buildDir, "server")
	if err := n.prepareServer(ctx, Vue, server, opts, expressPackages); err != nil {
		return nil, err
	}

	return splitLayout(buildDir, server), nil
}
