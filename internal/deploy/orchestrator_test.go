package deploy

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dosanma1/zonke-cli/internal/controlplane"
	"github.com/dosanma1/zonke-cli/internal/framework"
	"github.com/dosanma1/zonke-cli/internal/ledger"
	"github.com/dosanma1/zonke-cli/internal/project"
	"github.com/dosanma1/zonke-cli/internal/upload"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeControlPlane struct {
	endpoint     *controlplane.DeploymentEndpoint
	status       *controlplane.DeploymentStatus
	revertTo     string
	messageErr   error
	completeErr  error
	created      int
	completed    []controlplane.CompleteRequest
	messages     []string
	deleted      []string
	endpointReqs []controlplane.EndpointRequest
	remote       *ledger.Environment
}

func (f *fakeControlPlane) CreateEnvironment(_ context.Context, req controlplane.CreateRequest) (*ledger.Environment, error) {
	f.created++
	return &ledger.Environment{EnvironmentID: "env-1", Endpoint: "https://abc.preview.example.com"}, nil
}

func (f *fakeControlPlane) GetEnvironment(_ context.Context, environmentID string) (*ledger.Environment, error) {
	if f.remote == nil {
		return &ledger.Environment{EnvironmentID: environmentID}, nil
	}
	return f.remote, nil
}

func (f *fakeControlPlane) DeploymentEndpoint(_ context.Context, req controlplane.EndpointRequest) (*controlplane.DeploymentEndpoint, error) {
	f.endpointReqs = append(f.endpointReqs, req)
	return f.endpoint, nil
}

func (f *fakeControlPlane) CompleteDeployment(_ context.Context, req controlplane.CompleteRequest) error {
	f.completed = append(f.completed, req)
	return f.completeErr
}

func (f *fakeControlPlane) SetDeploymentMessage(_ context.Context, _, sourceVersion, message string) error {
	f.messages = append(f.messages, sourceVersion+":"+message)
	return f.messageErr
}

func (f *fakeControlPlane) DeploymentStatus(_ context.Context, _, sourceVersion string) (*controlplane.DeploymentStatus, error) {
	return f.status, nil
}

func (f *fakeControlPlane) DeployVersion(_ context.Context, _, sourceVersion string) (*controlplane.DeploymentStatus, error) {
	return &controlplane.DeploymentStatus{SourceVersion: f.revertTo}, nil
}

func (f *fakeControlPlane) DeleteEnvironment(_ context.Context, environmentID string) error {
	f.deleted = append(f.deleted, environmentID)
	return nil
}

type fakeNormalizer struct {
	meta *framework.Metadata
	err  error
	opts framework.Options
}

func (f *fakeNormalizer) Normalize(_ context.Context, _ string, _ framework.Framework, opts framework.Options) (*framework.Metadata, error) {
	f.opts = opts
	return f.meta, f.err
}

type fakeUploader struct {
	mu      sync.Mutex
	parts   []upload.Part
	single  [][]byte
	err     error
	version string
}

func (f *fakeUploader) Upload(_ context.Context, name string, data []byte, target upload.Target) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.single = append(f.single, data)
	return f.version, f.err
}

func (f *fakeUploader) UploadAll(_ context.Context, parts []upload.Part) ([]string, error) {
	if err := upload.CheckSize(parts); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.parts = append(f.parts, parts...)
	versions := make([]string, len(parts))
	for i, p := range parts {
		versions[i] = p.Name + "-version"
	}
	return versions, nil
}

type fixture struct {
	dir   string
	store *project.Store
	cp    *fakeControlPlane
	norm  *fakeNormalizer
	up    *fakeUploader
	orch  *Orchestrator
}

func newFixture(t *testing.T, withServer bool) *fixture {
	t.Helper()

	dir := t.TempDir()
	client := filepath.Join(dir, "build", "client")
	server := filepath.Join(dir, "build", "server")
	require.NoError(t, os.MkdirAll(client, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(client, "index.html"), []byte("<html></html>"), 0644))

	meta := &framework.Metadata{ClientDirectory: client, HasIndexHTML: true}
	endpoint := &controlplane.DeploymentEndpoint{
		SourceVersion: "src-1",
		Client:        upload.Direct{Endpoint: "https://s3/client"},
	}
	if withServer {
		require.NoError(t, os.MkdirAll(server, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(server, "index.mjs"), []byte("export const handler = 1"), 0644))
		meta.ServerDirectory = server
		endpoint.Server = upload.Direct{Endpoint: "https://s3/server"}
	}

	store := project.NewStore(filepath.Join(dir, project.ConfigFile))
	require.NoError(t, store.Create(&project.Config{
		Framework:            framework.Remix,
		AWSHostedZone:        "example.com",
		BuildOutputDirectory: "build",
		PackageJSONPath:      "package.json",
		PublicDirectory:      "public",
	}))

	f := &fixture{
		dir:   dir,
		store: store,
		cp:    &fakeControlPlane{endpoint: endpoint},
		norm:  &fakeNormalizer{meta: meta},
		up:    &fakeUploader{version: "object-v1"},
	}
	f.orch = New(f.cp, f.norm, f.up, WithClock(func() time.Time { return fixedNow }))
	return f
}

func (f *fixture) ledger(t *testing.T) *ledger.Environment {
	t.Helper()
	cfg, err := f.store.Load()
	require.NoError(t, err)
	return cfg.Environment
}

func TestDeploy_ClientAndServer(t *testing.T) {
	f := newFixture(t, true)

	result, err := f.orch.Deploy(context.Background(), f.store, "first")
	require.NoError(t, err)

	assert.Equal(t, 1, f.cp.created)
	require.Len(t, f.up.parts, 2)
	assert.Equal(t, "client", f.up.parts[0].Name)
	assert.Equal(t, "server", f.up.parts[1].Name)
	for _, p := range f.up.parts {
		_, err := zip.NewReader(bytes.NewReader(p.Data), int64(len(p.Data)))
		assert.NoError(t, err)
	}

	require.Len(t, f.cp.completed, 1)
	assert.Equal(t, controlplane.CompleteRequest{
		EnvironmentID: "env-1",
		SourceVersion: "src-1",
		ClientVersion: "client-version",
		ServerVersion: "server-version",
		HasIndexHTML:  true,
	}, f.cp.completed[0])
	assert.Equal(t, []string{"src-1:first"}, f.cp.messages)
	assert.Equal(t, filepath.Join(f.dir, "package.json"), f.norm.opts.PackageJSONPath)

	assert.Equal(t, ledger.Version{VersionID: "src-1", Message: "first", IsLatest: true, LastUpdated: fixedNow}, result.Version)
	env := f.ledger(t)
	require.NotNil(t, env)
	assert.Equal(t, []ledger.Version{result.Version}, env.Versions)
}

func TestDeploy_ClientOnly(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.orch.Deploy(context.Background(), f.store, "")
	require.NoError(t, err)

	require.Len(t, f.up.parts, 1)
	require.Len(t, f.cp.completed, 1)
	assert.Equal(t, "client-version", f.cp.completed[0].ClientVersion)
	assert.Empty(t, f.cp.completed[0].ServerVersion)
	assert.Empty(t, f.cp.messages)
}

func TestDeploy_SecondDeployKeepsSingleLatest(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.orch.Deploy(context.Background(), f.store, "one")
	require.NoError(t, err)
	f.cp.endpoint.SourceVersion = "src-2"
	_, err = f.orch.Deploy(context.Background(), f.store, "two")
	require.NoError(t, err)

	assert.Equal(t, 1, f.cp.created)
	env := f.ledger(t)
	require.Len(t, env.Versions, 2)
	assert.False(t, env.Versions[0].IsLatest)
	assert.True(t, env.Versions[1].IsLatest)
	assert.Equal(t, "src-2", env.Versions[1].VersionID)
}

func TestDeploy_SizeLimitWritesNothing(t *testing.T) {
	f := newFixture(t, true)
	f.cp.endpoint.Client = upload.Multipart{URL: "https://s3", MaxTotalSize: 10}
	f.cp.endpoint.Server = upload.Multipart{URL: "https://s3", MaxTotalSize: 10}

	_, err := f.orch.Deploy(context.Background(), f.store, "too big")

	var sizeErr *upload.SizeLimitError
	require.True(t, errors.As(err, &sizeErr))
	assert.Empty(t, f.up.parts)
	assert.Empty(t, f.cp.completed)
	assert.Empty(t, f.ledger(t).Versions)
}

func TestDeploy_FailuresWriteNoVersion(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{name: "normalize", setup: func(f *fixture) {
			f.norm.err = &framework.NormalizationError{Framework: framework.Remix, Message: "missing"}
		}},
		{name: "upload", setup: func(f *fixture) { f.up.err = errors.New("connection reset") }},
		{name: "complete", setup: func(f *fixture) { f.cp.completeErr = errors.New("500") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			tt.setup(f)

			_, err := f.orch.Deploy(context.Background(), f.store, "msg")
			require.Error(t, err)
			assert.Empty(t, f.ledger(t).Versions)
			assert.Empty(t, f.cp.messages)
		})
	}
}

func TestDeploy_MessageFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, false)
	f.cp.messageErr = errors.New("tracker not ready")

	result, err := f.orch.Deploy(context.Background(), f.store, "msg")
	require.NoError(t, err)
	assert.Equal(t, "src-1", result.Version.VersionID)
	assert.Len(t, f.ledger(t).Versions, 1)
}

func TestDeploy_ServerWithoutTarget(t *testing.T) {
	f := newFixture(t, true)
	f.cp.endpoint.Server = nil

	_, err := f.orch.Deploy(context.Background(), f.store, "")
	require.Error(t, err)
	assert.Empty(t, f.up.parts)
}

func TestDeploy_Combined(t *testing.T) {
	f := newFixture(t, false)
	f.cp.endpoint = &controlplane.DeploymentEndpoint{Combined: "https://s3/build.zip"}

	public := filepath.Join(f.dir, "public")
	require.NoError(t, os.MkdirAll(public, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(public, "robots.txt"), []byte("ok"), 0644))

	result, err := f.orch.Deploy(context.Background(), f.store, "combined")
	require.NoError(t, err)

	assert.Equal(t, "object-v1", result.Version.VersionID)
	assert.Empty(t, f.cp.completed)
	assert.Equal(t, []string{"object-v1:combined"}, f.cp.messages)

	require.Len(t, f.up.single, 1)
	data := f.up.single[0]
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, file := range zr.File {
		names = append(names, file.Name)
	}
	assert.ElementsMatch(t, []string{"build/client/index.html", "public/robots.txt"}, names)
}

func TestRevert(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.orch.Deploy(context.Background(), f.store, "original message")
	require.NoError(t, err)

	f.cp.revertTo = "src-9"
	result, err := f.orch.Revert(context.Background(), f.store, "src-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Version{VersionID: "src-9", Message: "original message", IsLatest: true, LastUpdated: fixedNow}, result.Version)

	env := f.ledger(t)
	require.Len(t, env.Versions, 2)
	assert.False(t, env.Versions[0].IsLatest)
	assert.Equal(t, "src-1", env.Versions[0].VersionID)
	latest, ok := env.Latest()
	require.True(t, ok)
	assert.Equal(t, "src-9", latest.VersionID)
}

func TestRevert_UnknownVersion(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.orch.Deploy(context.Background(), f.store, "")
	require.NoError(t, err)

	_, err = f.orch.Revert(context.Background(), f.store, "nope")
	assert.ErrorIs(t, err, ErrVersionNotFound)
	assert.Len(t, f.ledger(t).Versions, 1)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.orch.Status(context.Background(), f.store)
	assert.ErrorIs(t, err, ErrNoEnvironment)

	_, err = f.orch.Deploy(context.Background(), f.store, "")
	require.NoError(t, err)

	f.cp.status = &controlplane.DeploymentStatus{SourceVersion: "src-1", Status: controlplane.StateInProgress}
	status, err := f.orch.Status(context.Background(), f.store)
	require.NoError(t, err)
	assert.Equal(t, controlplane.StateInProgress, status.Status)

	f.cp.status = &controlplane.DeploymentStatus{Status: "PAUSED"}
	_, err = f.orch.Status(context.Background(), f.store)
	assert.Error(t, err)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.orch.Refresh(context.Background(), f.store)
	assert.ErrorIs(t, err, ErrNoEnvironment)

	_, err = f.orch.Deploy(context.Background(), f.store, "first")
	require.NoError(t, err)

	env, err := f.orch.Refresh(context.Background(), f.store)
	require.NoError(t, err)
	assert.Equal(t, "https://abc.preview.example.com", env.Endpoint)

	f.cp.remote = &ledger.Environment{EnvironmentID: "env-1", Endpoint: "https://renamed.preview.example.com"}
	env, err = f.orch.Refresh(context.Background(), f.store)
	require.NoError(t, err)
	assert.Equal(t, "https://renamed.preview.example.com", env.Endpoint)

	cfg, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, "https://renamed.preview.example.com", cfg.Environment.Endpoint)
	require.Len(t, cfg.Environment.Versions, 1)
	assert.Equal(t, "first", cfg.Environment.Versions[0].Message)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, false)

	deleted, err := f.orch.Delete(context.Background(), f.store)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = f.orch.Deploy(context.Background(), f.store, "")
	require.NoError(t, err)

	deleted, err = f.orch.Delete(context.Background(), f.store)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, []string{"env-1"}, f.cp.deleted)
	assert.Nil(t, f.ledger(t))
}

func TestInitialize(t *testing.T) {
	cp := &fakeControlPlane{}
	orch := New(cp, &fakeNormalizer{}, &fakeUploader{})
	store := project.NewStore(filepath.Join(t.TempDir(), project.ConfigFile))

	env, err := orch.Initialize(context.Background(), store, &project.Config{
		Framework:            framework.React,
		AWSHostedZone:        "example.com",
		BuildOutputDirectory: "dist",
	})
	require.NoError(t, err)
	assert.Equal(t, "env-1", env.EnvironmentID)

	cfg, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "env-1", cfg.Environment.EnvironmentID)

	_, err = orch.Initialize(context.Background(), store, cfg)
	assert.Error(t, err)
	assert.Equal(t, 1, cp.created)
}
