package deploy

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dosanma1/zonke-cli/internal/archive"
	"github.com/dosanma1/zonke-cli/internal/controlplane"
	"github.com/dosanma1/zonke-cli/internal/framework"
	"github.com/dosanma1/zonke-cli/internal/upload"
)

// deploySplit normalizes the build, uploads client and server bundles
// concurrently and finalizes the deployment. It returns the source version.
func (o *Orchestrator) deploySplit(ctx context.Context, fw framework.Framework, environmentID string, paths buildPaths, endpoint *controlplane.DeploymentEndpoint) (string, error) {
	meta, err := o.normalizer.Normalize(ctx, paths.buildDir, fw, framework.Options{PackageJSONPath: paths.packageJSON})
	if err != nil {
		return "", fmt.Errorf("failed to prepare build output: %w", err)
	}
	if meta.ServerDirectory != "" && endpoint.Server == nil {
		return "", fmt.Errorf("build has a server bundle but the environment accepts no server upload")
	}

	parts, err := o.archiveParts(ctx, meta, endpoint)
	if err != nil {
		return "", err
	}

	versions, err := o.uploader.UploadAll(ctx, parts)
	if err != nil {
		return "", err
	}

	complete := controlplane.CompleteRequest{
		EnvironmentID: environmentID,
		SourceVersion: endpoint.SourceVersion,
		ClientVersion: versions[0],
		HasIndexHTML:  meta.HasIndexHTML,
	}
	if len(versions) > 1 {
		complete.ServerVersion = versions[1]
	}

	if err := o.controlPlane.CompleteDeployment(ctx, complete); err != nil {
		return "", fmt.Errorf("failed to complete deployment: %w", err)
	}

	o.logger.Debug("deployment completed",
		zap.String("source", endpoint.SourceVersion),
		zap.String("client", complete.ClientVersion),
		zap.String("server", complete.ServerVersion))
	return endpoint.SourceVersion, nil
}

// archiveParts archives the client directory, and the server directory
// when present, concurrently. The client part is always first.
func (o *Orchestrator) archiveParts(ctx context.Context, meta *framework.Metadata, endpoint *controlplane.DeploymentEndpoint) ([]upload.Part, error) {
	parts := []upload.Part{{Name: "client", Target: endpoint.Client}}
	dirs := []string{meta.ClientDirectory}
	if meta.ServerDirectory != "" {
		parts = append(parts, upload.Part{Name: "server", Target: endpoint.Server})
		dirs = append(dirs, meta.ServerDirectory)
	}

	g, _ := errgroup.WithContext(ctx)
	for i := range parts {
		g.Go(func() error {
			data, err := archive.Directory(dirs[i], o.level)
			if err != nil {
				return fmt.Errorf("failed to archive %s directory: %w", parts[i].Name, err)
			}
			parts[i].Data = data
			o.logger.Debug("archive created", zap.String("name", parts[i].Name), zap.Int("bytes", len(data)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

// deployCombined uploads build and public directories as one archive. The
// stored object's version becomes the deployment version.
func (o *Orchestrator) deployCombined(ctx context.Context, paths buildPaths, endpoint *controlplane.DeploymentEndpoint) (string, error) {
	extras := map[string]string{}
	if paths.publicDir != "" {
		extras["public"] = paths.publicDir
	}

	data, err := archive.Staged(paths.buildDir, extras, archive.LevelBest)
	if err != nil {
		return "", fmt.Errorf("failed to archive build output: %w", err)
	}

	version, err := o.uploader.Upload(ctx, "build", data, upload.Direct{Endpoint: endpoint.Combined})
	if err != nil {
		return "", fmt.Errorf("failed to upload build archive: %w", err)
	}
	return version, nil
}
