package framework

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/dosanma1/zonke-cli/pkg/xos"
)

// nextNormalizer turns a Next.js standalone build into open-next output.
type nextNormalizer struct {
	toolbox
}

func (n *nextNormalizer) Framework() Framework {
	return NextJS
}

func (n *nextNormalizer) Normalize(ctx context.Context, buildDir string, _ Options) (*Metadata, error) {
	if filepath.Base(buildDir) != ".next" {
		n.logger.Debug("build directory is not .next, deploying as static output", zap.String("dir", buildDir))
		return defaultMetadata(buildDir), nil
	}

	parent := filepath.Dir(buildDir)
	if err := n.openNextBuild(ctx, parent); err != nil {
		return nil, err
	}

	client := filepath.Join(parent, ".open-next", "assets")
	prerendered := filepath.Join(buildDir, "standalone", ".next", "server", "app", "index.html")
	if xos.Exists(prerendered) {
		if err := xos.CopyFile(prerendered, filepath.Join(client, "index.html")); err != nil {
			return nil, &NormalizationError{Framework: NextJS, Message: "failed to copy prerendered index.html", Err: err}
		}
	}

	return &Metadata{
		ClientDirectory: client,
		ServerDirectory: filepath.Join(parent, ".open-next", "server-functions", "default"),
		HasIndexHTML:    hasIndexHTML(client),
	}, nil
}

// openNextBuild runs open-next with the project's build script disabled,
// since the application is already built. The original package.json is
// restored on every exit path.
func (n *nextNormalizer) openNextBuild(ctx context.Context, projectDir string) (err error) {
	manifest := filepath.Join(projectDir, "package.json")
	original, err := os.ReadFile(manifest)
	if err != nil {
		return &NormalizationError{Framework: NextJS, Message: "failed to read package.json", Err: err}
	}

	info, err := os.Stat(manifest)
	if err != nil {
		return err
	}

	defer func() {
		if restoreErr := xos.WriteFileMode(manifest, original, info.Mode().Perm()); restoreErr != nil && err == nil {
			err = fmt.Errorf("failed to restore package.json: %w", restoreErr)
		}
	}()

	if !gjson.ValidBytes(original) {
		return &NormalizationError{Framework: NextJS, Message: "package.json is not valid JSON"}
	}

	// sjson splices the new value in place, leaving key order and formatting alone.
	rewritten, err := sjson.SetRawBytes(append([]byte(nil), original...), "scripts", []byte(`{"build":"exit 0"}`))
	if err != nil {
		return &NormalizationError{Framework: NextJS, Message: "failed to disable the build script", Err: err}
	}
	if err := xos.WriteFileMode(manifest, rewritten, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write package.json: %w", err)
	}

	return n.run(ctx, projectDir, productionEnv, "npx", "--yes", "open-next", "build")
}
