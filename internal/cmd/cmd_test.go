package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dosanma1/zonke-cli/internal/controlplane"
	"github.com/dosanma1/zonke-cli/internal/framework"
	"github.com/dosanma1/zonke-cli/internal/project"
)

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, project.ConfigFile), []byte("framework: react\n"), 0644))
	nested := filepath.Join(root, "apps", "web")
	require.NoError(t, os.MkdirAll(nested, 0755))

	got, err := findProjectRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestFindProjectRoot_NotInitialized(t *testing.T) {
	_, err := findProjectRoot(t.TempDir())
	assert.ErrorIs(t, err, project.ErrNotInitialized)
}

func TestResolveCredentialsPath(t *testing.T) {
	credentialsPath = ""
	assert.Equal(t, filepath.Join("/srv/app", project.CredentialsFile), resolveCredentialsPath("/srv/app/zonke.yaml"))

	credentialsPath = "/etc/zonke/.env"
	t.Cleanup(func() { credentialsPath = "" })
	assert.Equal(t, "/etc/zonke/.env", resolveCredentialsPath("/srv/app/zonke.yaml"))
}

func TestDescribeStatus(t *testing.T) {
	tests := []struct {
		status controlplane.DeploymentStatus
		want   string
	}{
		{controlplane.DeploymentStatus{Status: controlplane.StateScheduled}, "Deployment scheduled"},
		{controlplane.DeploymentStatus{Status: controlplane.StateInProgress}, "Deployment in progress"},
		{controlplane.DeploymentStatus{Status: controlplane.StateSuccess}, "Deployment succeeded!"},
		{controlplane.DeploymentStatus{Status: controlplane.StateFailed, Error: "lambda timed out"}, "lambda timed out"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status.Status), func(t *testing.T) {
			assert.Contains(t, describeStatus(&tt.status), tt.want)
		})
	}
}

func TestDefaultBuildDir(t *testing.T) {
	assert.Equal(t, ".next", defaultBuildDir(framework.NextJS))
	assert.Equal(t, "build", defaultBuildDir(framework.Remix))
	assert.Equal(t, "dist", defaultBuildDir(framework.Astro))
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"init", "deploy", "deployment-status", "delete-environment"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
