package vectorstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"manual-rag/internal/models"
)

// ManifestFile marks a completed ingestion inside the store directory.
const ManifestFile = "manifest.yaml"

// Manifest records how the store was built.
type Manifest struct {
	Backend        string    `yaml:"backend"`
	EmbeddingModel string    `yaml:"embedding_model"`
	Dimensions     int       `yaml:"dimensions"`
	ChunkSize      int       `yaml:"chunk_size"`
	ChunkOverlap   int       `yaml:"chunk_overlap"`
	SpanPages      bool      `yaml:"span_pages"`
	Source         string    `yaml:"source"`
	Pages          int       `yaml:"pages"`
	Records        int       `yaml:"records"`
	CreatedAt      time.Time `yaml:"created_at"`
}

func ManifestPath(dir string) string {
	return filepath.Join(dir, ManifestFile)
}

// ManifestExists reports whether an ingestion has completed in dir.
func ManifestExists(dir string) bool {
	_, err := os.Stat(ManifestPath(dir))
	return err == nil
}

// WriteManifest writes m atomically through a temp file and rename.
func WriteManifest(dir string, m *Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return WriteManifestFile(ManifestPath(dir), m)
}

func WriteManifestFile(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ReadManifest(dir string) (*Manifest, error) {
	return ReadManifestFile(ManifestPath(dir))
}

func ReadManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: no manifest at %s", models.ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: corrupt manifest %s: %v", models.ErrInvalidConfig, path, err)
	}
	return &m, nil
}

func RemoveManifest(dir string) error {
	err := os.Remove(ManifestPath(dir))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// CheckModel fails when the store was built with a different embedding model.
func (m *Manifest) CheckModel(model string) error {
	if m.EmbeddingModel != model {
		return fmt.Errorf("%w: store was built with %q but %q is configured; run ingest --force to rebuild",
			models.ErrInvalidConfig, m.EmbeddingModel, model)
	}
	return nil
}
