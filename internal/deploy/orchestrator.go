// Package deploy runs preview-environment deployments: it normalizes and
// archives a build, uploads it, finalizes the deployment with the control
// plane and records the result in the project's version ledger.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/dosanma1/zonke-cli/internal/archive"
	"github.com/dosanma1/zonke-cli/internal/controlplane"
	"github.com/dosanma1/zonke-cli/internal/framework"
	"github.com/dosanma1/zonke-cli/internal/ledger"
	"github.com/dosanma1/zonke-cli/internal/project"
	"github.com/dosanma1/zonke-cli/internal/upload"
)

// LatestVersion selects a fresh deployment instead of a revert.
const LatestVersion = "latest"

// ErrVersionNotFound is returned when a revert target is not in the ledger.
var ErrVersionNotFound = errors.New("version not found")

// ErrNoEnvironment is returned when the project has no deployed environment.
var ErrNoEnvironment = errors.New("no environment found. Run `zonke deploy` to create one")

// ControlPlane is the subset of the control-plane API used by deployments.
type ControlPlane interface {
	CreateEnvironment(ctx context.Context, req controlplane.CreateRequest) (*ledger.Environment, error)
	GetEnvironment(ctx context.Context, environmentID string) (*ledger.Environment, error)
	DeploymentEndpoint(ctx context.Context, req controlplane.EndpointRequest) (*controlplane.DeploymentEndpoint, error)
	CompleteDeployment(ctx context.Context, req controlplane.CompleteRequest) error
	SetDeploymentMessage(ctx context.Context, environmentID, sourceVersion, message string) error
	DeploymentStatus(ctx context.Context, environmentID, sourceVersion string) (*controlplane.DeploymentStatus, error)
	DeployVersion(ctx context.Context, environmentID, sourceVersion string) (*controlplane.DeploymentStatus, error)
	DeleteEnvironment(ctx context.Context, environmentID string) error
}

// Normalizer prepares framework build output.
type Normalizer interface {
	Normalize(ctx context.Context, buildDir string, fw framework.Framework, opts framework.Options) (*framework.Metadata, error)
}

// Uploader sends archives to signed targets.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte, target upload.Target) (string, error)
	UploadAll(ctx context.Context, parts []upload.Part) ([]string, error)
}

// Orchestrator coordinates deployments for one project.
type Orchestrator struct {
	controlPlane ControlPlane
	normalizer   Normalizer
	uploader     Uploader
	logger       *zap.Logger
	level        archive.Level
	now          func() time.Time
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCompression sets the archive level for client and server bundles.
func WithCompression(level archive.Level) Option {
	return func(o *Orchestrator) {
		o.level = level
	}
}

// WithClock overrides the time source used to stamp versions.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an Orchestrator.
func New(cp ControlPlane, normalizer Normalizer, uploader Uploader, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		controlPlane: cp,
		normalizer:   normalizer,
		uploader:     uploader,
		logger:       zap.NewNop(),
		level:        archive.LevelBest,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Result describes a recorded deployment.
type Result struct {
	EnvironmentID string
	Endpoint      string
	Version       ledger.Version
}

// Initialize creates the remote environment and writes cfg, including the
// new environment, to the store.
func (o *Orchestrator) Initialize(ctx context.Context, store *project.Store, cfg *project.Config) (*ledger.Environment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if store.Exists() {
		return nil, fmt.Errorf("config file %s already exists", store.Path())
	}

	env, err := o.createEnvironment(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cfg.Environment = env
	if err := store.Create(cfg); err != nil {
		return nil, fmt.Errorf("failed to save config: %w", err)
	}
	return env, nil
}

// Deploy uploads the configured build as a new version. The environment
// is created first when the project has none.
func (o *Orchestrator) Deploy(ctx context.Context, store *project.Store, message string) (*Result, error) {
	cfg, err := store.Load()
	if err != nil {
		return nil, err
	}

	env, err := o.ensureEnvironment(ctx, store, cfg)
	if err != nil {
		return nil, err
	}

	endpoint, err := o.controlPlane.DeploymentEndpoint(ctx, controlplane.EndpointRequest{
		EnvironmentID: env.EnvironmentID,
		Message:       message,
		ExpiresIn:     cfg.UploadLinkExpiration,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request deployment endpoint: %w", err)
	}

	paths := resolvePaths(store, cfg)

	var versionID string
	if endpoint.Split() {
		versionID, err = o.deploySplit(ctx, cfg.Framework, env.EnvironmentID, paths, endpoint)
	} else {
		versionID, err = o.deployCombined(ctx, paths, endpoint)
	}
	if err != nil {
		return nil, err
	}

	if message != "" {
		// The deployment is complete either way.
		if err := o.controlPlane.SetDeploymentMessage(ctx, env.EnvironmentID, versionID, message); err != nil {
			o.logger.Warn("failed to set deployment message", zap.String("version", versionID), zap.Error(err))
		}
	}

	version := ledger.NewVersion(versionID, message, o.now())
	if err := o.record(store, env.EnvironmentID, version); err != nil {
		return nil, err
	}

	o.logger.Info("deployment recorded", zap.String("environment", env.EnvironmentID), zap.String("version", versionID))
	return &Result{EnvironmentID: env.EnvironmentID, Endpoint: env.Endpoint, Version: version}, nil
}

// Revert redeploys a version from the ledger. The control plane assigns a
// new version id, recorded with the original version's message.
func (o *Orchestrator) Revert(ctx context.Context, store *project.Store, sourceVersion string) (*Result, error) {
	cfg, err := store.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Environment == nil {
		return nil, ErrNoEnvironment
	}
	env := cfg.Environment

	previous, ok := env.Find(sourceVersion)
	if !ok {
		return nil, fmt.Errorf("the specified source version '%s' does not exist: %w", sourceVersion, ErrVersionNotFound)
	}

	status, err := o.controlPlane.DeployVersion(ctx, env.EnvironmentID, sourceVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to revert to version %s: %w", sourceVersion, err)
	}

	version := ledger.NewVersion(status.SourceVersion, previous.Message, o.now())
	if err := o.record(store, env.EnvironmentID, version); err != nil {
		return nil, err
	}

	o.logger.Info("revert recorded",
		zap.String("environment", env.EnvironmentID),
		zap.String("from", sourceVersion),
		zap.String("version", version.VersionID))
	return &Result{EnvironmentID: env.EnvironmentID, Endpoint: env.Endpoint, Version: version}, nil
}

// Status returns the control plane's status for the latest version.
func (o *Orchestrator) Status(ctx context.Context, store *project.Store) (*controlplane.DeploymentStatus, error) {
	cfg, err := store.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Environment == nil {
		return nil, ErrNoEnvironment
	}

	latest, ok := cfg.Environment.Latest()
	if !ok {
		return nil, ErrNoEnvironment
	}

	status, err := o.controlPlane.DeploymentStatus(ctx, cfg.Environment.EnvironmentID, latest.VersionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment status: %w", err)
	}
	if !status.Status.Valid() {
		return nil, fmt.Errorf("received an unknown deployment status: %q", status.Status)
	}
	return status, nil
}

// Refresh fetches the environment from the control plane and stores its
// current endpoint. The local version ledger is kept as is.
func (o *Orchestrator) Refresh(ctx context.Context, store *project.Store) (*ledger.Environment, error) {
	cfg, err := store.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Environment == nil {
		return nil, ErrNoEnvironment
	}
	environmentID := cfg.Environment.EnvironmentID

	remote, err := o.controlPlane.GetEnvironment(ctx, environmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get environment: %w", err)
	}
	if remote.Endpoint == "" || remote.Endpoint == cfg.Environment.Endpoint {
		return cfg.Environment, nil
	}

	var env *ledger.Environment
	if err := store.Update(func(c *project.Config) error {
		if c.Environment == nil || c.Environment.EnvironmentID != environmentID {
			return project.ErrConcurrentUpdate
		}
		c.Environment.Endpoint = remote.Endpoint
		env = c.Environment
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to save environment: %w", err)
	}

	o.logger.Debug("environment endpoint updated", zap.String("environment", environmentID), zap.String("endpoint", remote.Endpoint))
	return env, nil
}

// Delete removes the remote environment and clears it from the config.
// It reports false when the project has no environment.
func (o *Orchestrator) Delete(ctx context.Context, store *project.Store) (bool, error) {
	cfg, err := store.Load()
	if err != nil {
		return false, err
	}
	if cfg.Environment == nil {
		return false, nil
	}

	environmentID := cfg.Environment.EnvironmentID
	if err := o.controlPlane.DeleteEnvironment(ctx, environmentID); err != nil {
		return false, fmt.Errorf("failed to delete environment: %w", err)
	}

	if err := store.Update(func(c *project.Config) error {
		c.Environment = nil
		return nil
	}); err != nil {
		return false, fmt.Errorf("failed to save config: %w", err)
	}

	o.logger.Info("environment deleted", zap.String("environment", environmentID))
	return true, nil
}

func (o *Orchestrator) createEnvironment(ctx context.Context, cfg *project.Config) (*ledger.Environment, error) {
	env, err := o.controlPlane.CreateEnvironment(ctx, controlplane.CreateRequest{
		Framework:     string(cfg.Framework),
		AWSHostedZone: cfg.AWSHostedZone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create environment: %w", err)
	}
	if env.Versions == nil {
		env.Versions = []ledger.Version{}
	}

	o.logger.Info("environment created", zap.String("environment", env.EnvironmentID), zap.String("endpoint", env.Endpoint))
	return env, nil
}

func (o *Orchestrator) ensureEnvironment(ctx context.Context, store *project.Store, cfg *project.Config) (*ledger.Environment, error) {
	if cfg.Environment != nil {
		return cfg.Environment, nil
	}

	env, err := o.createEnvironment(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := store.Update(func(c *project.Config) error {
		if c.Environment != nil {
			return project.ErrConcurrentUpdate
		}
		c.Environment = env
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to save environment: %w", err)
	}
	return env, nil
}

// record appends version to the ledger of environmentID.
func (o *Orchestrator) record(store *project.Store, environmentID string, version ledger.Version) error {
	err := store.Update(func(c *project.Config) error {
		if c.Environment == nil || c.Environment.EnvironmentID != environmentID {
			return project.ErrConcurrentUpdate
		}
		c.Environment.Append(version)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record version %s: %w", version.VersionID, err)
	}
	return nil
}

// buildPaths are the config paths resolved against the config directory.
type buildPaths struct {
	buildDir    string
	packageJSON string
	publicDir   string
}

func resolvePaths(store *project.Store, cfg *project.Config) buildPaths {
	base := filepath.Dir(store.Path())
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	return buildPaths{
		buildDir:    resolve(cfg.BuildOutputDirectory),
		packageJSON: resolve(cfg.PackageJSONPath),
		publicDir:   resolve(cfg.PublicDirectory),
	}
}
