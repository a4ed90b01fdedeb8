// Package report turns the outcome of a screenshot run into reviewable output:
// an ordered manifest of the written screenshots and a console summary.
package report

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"lstqc/internal/models"
)

// Builder consumes the ordered list of screenshots a run produced
type Builder interface {
	Build(artifacts []models.Artifact) error
}

// Manifest is the document written by ManifestWriter
type Manifest struct {
	Count     int               `yaml:"count"`
	Artifacts []models.Artifact `yaml:"artifacts"`
}

// ManifestWriter writes the artifact list as YAML to Path
type ManifestWriter struct {
	Path string
}

// Build writes the manifest, creating parent directories as needed
func (m ManifestWriter) Build(artifacts []models.Artifact) error {
	if artifacts == nil {
		artifacts = []models.Artifact{}
	}

	data, err := yaml.Marshal(Manifest{Count: len(artifacts), Artifacts: artifacts})
	if err != nil {
		return fmt.Errorf("error marshaling manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.Path), 0755); err != nil {
		return fmt.Errorf("error creating manifest directory: %w", err)
	}
	if err := os.WriteFile(m.Path, data, 0644); err != nil {
		return fmt.Errorf("error writing manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest written by ManifestWriter
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("error parsing manifest: %w", err)
	}
	return &m, nil
}
