package container

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/nexuscore/core/internal/errtag"
)

// MetadataStore persists one JSON file per container under
// {data_root}/containers/, per spec.md §4.9 and §6.
type MetadataStore struct {
	dir string
}

// NewMetadataStore prepares a store rooted at dataRoot/containers.
func NewMetadataStore(dataRoot string) (*MetadataStore, error) {
	dir := filepath.Join(dataRoot, "containers")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errtag.New(errtag.IO, errtag.Medium, err)
	}
	return &MetadataStore{dir: dir}, nil
}

func (s *MetadataStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes c's metadata to its JSON file, replacing any existing file.
func (s *MetadataStore) Save(c *Container) error {
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errtag.New(errtag.Serialization, errtag.Low, err)
	}
	if err := os.WriteFile(s.path(c.ID), raw, 0o644); err != nil {
		return errtag.New(errtag.IO, errtag.Medium, err)
	}
	return nil
}

// Load reads one container's metadata by id.
func (s *MetadataStore) Load(id string) (*Container, error) {
	raw, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, errtag.New(errtag.NotFound, errtag.Medium, err)
	}
	var c Container
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, errtag.New(errtag.Syntax, errtag.Medium, err)
	}
	return &c, nil
}

// Delete removes a container's metadata file.
func (s *MetadataStore) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return errtag.New(errtag.IO, errtag.Medium, err)
	}
	return nil
}

// LoadAll scans the metadata directory and reloads every container found,
// per spec.md §4.9: "containers are reloaded on daemon startup by scanning
// that directory."
func (s *MetadataStore) LoadAll() ([]*Container, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errtag.New(errtag.IO, errtag.Medium, err)
	}

	var containers []*Container
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		c, err := s.Load(id)
		if err != nil {
			continue
		}
		containers = append(containers, c)
	}
	return containers, nil
}
