// Package ledger records the versions deployed to a preview environment.
package ledger

import (
	"fmt"
	"time"
)

// Version is one deployment of an environment.
type Version struct {
	VersionID   string    `json:"versionId" yaml:"versionId"`
	Message     string    `json:"message,omitempty" yaml:"message,omitempty"`
	IsLatest    bool      `json:"isLatest" yaml:"isLatest"`
	LastUpdated time.Time `json:"lastUpdated" yaml:"lastUpdated"`
}

// Environment is a preview environment and its deployment history.
// Versions is append-only; at most one entry has IsLatest set.
type Environment struct {
	EnvironmentID string    `json:"environmentId" yaml:"environmentId"`
	Endpoint      string    `json:"endpoint" yaml:"endpoint"`
	Versions      []Version `json:"versions" yaml:"versions"`
}

// Append records v as the latest version. Every earlier entry loses its
// latest flag; nothing else about them changes.
func (e *Environment) Append(v Version) {
	for i := range e.Versions {
		e.Versions[i].IsLatest = false
	}
	v.IsLatest = true
	e.Versions = append(e.Versions, v)
}

// Latest returns the version flagged as latest.
func (e *Environment) Latest() (Version, bool) {
	for i := len(e.Versions) - 1; i >= 0; i-- {
		if e.Versions[i].IsLatest {
			return e.Versions[i], true
		}
	}
	return Version{}, false
}

// Find returns the first version with the given id.
func (e *Environment) Find(versionID string) (Version, bool) {
	for _, v := range e.Versions {
		if v.VersionID == versionID {
			return v, true
		}
	}
	return Version{}, false
}

// Validate checks the single-latest invariant.
func (e *Environment) Validate() error {
	if e.EnvironmentID == "" {
		return fmt.Errorf("environment id is required")
	}

	latest := 0
	for _, v := range e.Versions {
		if v.VersionID == "" {
			return fmt.Errorf("environment %s has a version without an id", e.EnvironmentID)
		}
		if v.IsLatest {
			latest++
		}
	}
	if latest > 1 {
		return fmt.Errorf("environment %s has %d versions marked latest", e.EnvironmentID, latest)
	}
	return nil
}

// NewVersion creates a latest version stamped with at.
func NewVersion(versionID, message string, at time.Time) Version {
	return Version{
		VersionID:   versionID,
		Message:     message,
		IsLatest:    true,
		LastUpdated: at.UTC(),
	}
}
