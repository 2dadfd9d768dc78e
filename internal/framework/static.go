package framework

import (
	"context"
)

// staticNormalizer deploys the build directory as-is.
type staticNormalizer struct {
	framework Framework
}

func (n *staticNormalizer) Framework() Framework {
	return n.framework
}

func (n *staticNormalizer) Normalize(_ context.Context, buildDir string, _ Options) (*Metadata, error) {
	return defaultMetadata(buildDir), nil
}

func defaultMetadata(buildDir string) *Metadata {
	return &Metadata{
		ClientDirectory: buildDir,
		HasIndexHTML:    hasIndexHTML(buildDir),
	}
}
