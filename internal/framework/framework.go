// Package framework normalizes framework build output into a client
// directory and an optional server directory ready for archiving.
package framework

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/dosanma1/zonke-cli/internal/runner"
)

// Framework identifies the frontend framework that produced a build.
type Framework string

const (
	React  Framework = "react"
	NextJS Framework = "nextjs"
	Remix  Framework = "remix"
	Vue    Framework = "vue"
	Astro  Framework = "astro"
	Dash   Framework = "dash"
)

// Metadata describes a normalized build.
type Metadata struct {
	// ClientDirectory holds the static assets.
	ClientDirectory string
	// ServerDirectory holds the server function, empty for static builds.
	ServerDirectory string
	// HasIndexHTML reports whether ClientDirectory contains index.html.
	HasIndexHTML bool
}

// Options carries project settings some normalizers need.
type Options struct {
	// PackageJSONPath is copied into the server directory when set.
	PackageJSONPath string
}

// NormalizationError reports build output that cannot be normalized.
type NormalizationError struct {
	Framework Framework
	Message   string
	Err       error
}

func (e *NormalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Framework, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Framework, e.Message)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

// Normalizer is implemented by every framework-specific normalizer.
type Normalizer interface {
	// Framework returns the framework this normalizer handles.
	Framework() Framework

	// Normalize prepares buildDir and returns the directories to deploy.
	Normalize(ctx context.Context, buildDir string, opts Options) (*Metadata, error)
}

// Registry dispatches a build to the normalizer registered for its framework.
type Registry struct {
	normalizers map[Framework]Normalizer
	logger      *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		normalizers: make(map[Framework]Normalizer),
		logger:      logger,
	}
}

// NewDefaultRegistry creates a registry holding every supported framework.
func NewDefaultRegistry(r runner.Runner, logger *zap.Logger) *Registry {
	reg := NewRegistry(logger)
	tools := toolbox{runner: r, logger: reg.logger}

	for _, n := range []Normalizer{
		&staticNormalizer{framework: React},
		&nextNormalizer{toolbox: tools},
		&remixNormalizer{toolbox: tools},
		&vueNormalizer{toolbox: tools},
		&astroNormalizer{toolbox: tools},
		&dashNormalizer{toolbox: tools},
	} {
		// Built-in frameworks are unique.
		_ = reg.Register(n)
	}

	return reg
}

// Register adds a normalizer.
func (r *Registry) Register(n Normalizer) error {
	fw := n.Framework()
	if _, exists := r.normalizers[fw]; exists {
		return fmt.Errorf("normalizer for %q already registered", fw)
	}
	r.normalizers[fw] = n
	return nil
}

// Get returns the normalizer for fw.
func (r *Registry) Get(fw Framework) (Normalizer, error) {
	n, ok := r.normalizers[fw]
	if !ok {
		return nil, fmt.Errorf("normalizer for %q not found (available: %v)", fw, r.List())
	}
	return n, nil
}

// List returns the registered frameworks in sorted order.
func (r *Registry) List() []Framework {
	names := make([]Framework, 0, len(r.normalizers))
	for fw := range r.normalizers {
		names = append(names, fw)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Normalize prepares buildDir for fw. Frameworks without a registered
// normalizer are deployed as static output.
func (r *Registry) Normalize(ctx context.Context, buildDir string, fw Framework, opts Options) (*Metadata, error) {
	n, err := r.Get(fw)
	if err != nil {
		r.logger.Debug("using static layout", zap.String("framework", string(fw)), zap.Error(err))
		n = &staticNormalizer{framework: fw}
	}

	r.logger.Debug("normalizing build output", zap.String("framework", string(fw)), zap.String("dir", buildDir))
	return n.Normalize(ctx, buildDir, opts)
}

// Supported reports whether fw names a built-in framework.
func Supported(fw Framework) bool {
	switch fw {
	case React, NextJS, Remix, Vue, Astro, Dash:
		return true
	}
	return false
}

// All returns the built-in frameworks.
func All() []Framework {
	return []Framework{React, NextJS, Remix, Vue, Astro, Dash}
}

// toolbox is shared by normalizers that run external tools.
type toolbox struct {
	runner runner.Runner
	logger *zap.Logger
}

func (t toolbox) run(ctx context.Context, dir string, env []string, name string, args ...string) error {
	_, err := t.runner.Run(ctx, runner.Command{
		Name: name,
		Args: args,
		Dir:  dir,
		Env:  env,
	})
	return err
}

// productionEnv is passed to package-manager installs.
var productionEnv = []string{"NODE_ENV=production"}

// npmrc makes package managers lay out node_modules without symlinks so
// the server directory can be archived as-is.
const npmrc = "node-linker=hoisted\nsymlink=false\n"

func writeNpmrc(dir string) error {
	return os.WriteFile(filepath.Join(dir, ".npmrc"), []byte(npmrc), 0644)
}

func hasIndexHTML(clientDir string) bool {
	info, err := os.Stat(filepath.Join(clientDir, "index.html"))
	return err == nil && info.Mode().IsRegular()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// splitLayout returns the metadata for a build/{client,server} layout.
func splitLayout(buildDir, serverDir string) *Metadata {
	client := filepath.Join(buildDir, "client")
	return &Metadata{
		ClientDirectory: client,
		ServerDirectory: serverDir,
		HasIndexHTML:    hasIndexHTML(client),
	}
}
