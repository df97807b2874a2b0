package appspec

import (
	"errors"
	"fmt"
	"os"

	"github.com/nholik/sensu-hooks/internal/deployment"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a manifest file does not exist.
var ErrNotFound = errors.New("appspec not found")

// Appspec is a parsed package manifest. Mapping order from the source document is preserved.
type Appspec struct {
	root *yaml.Node
}

// Parse decodes an appspec document. An empty document yields an empty manifest.
func Parse(data []byte) (*Appspec, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse appspec: %w", err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind == 0 {
		return &Appspec{}, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse appspec: line %d: top level must be a mapping", root.Line)
	}
	return &Appspec{root: root}, nil
}

// Load reads and parses the appspec at path.
func Load(path string) (*Appspec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read appspec: %w", err)
	}
	return Parse(data)
}

// PreviousArchiveExists reports whether the previous deployment's archive
// directory is still on disk.
func PreviousArchiveExists(d *deployment.Deployment) (bool, error) {
	if d.LastArchiveDir == "" {
		return false, nil
	}
	info, err := os.Stat(d.LastArchiveDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat previous archive: %w", err)
	}
	return info.IsDir(), nil
}

// LoadPrevious returns the previous deployment's manifest, or nil when it no
// longer exists. Its health checks may still be found in the archive's
// dedicated health check file.
func LoadPrevious(d *deployment.Deployment) (*Appspec, error) {
	path := d.PreviousManifestPath()
	if path == "" {
		return nil, nil
	}
	spec, err := Load(path)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return spec, err
}

// Has reports whether the manifest declares a top-level key.
func (a *Appspec) Has(key string) bool {
	return a.lookup(key) != nil
}

func (a *Appspec) lookup(key string) *yaml.Node {
	if a == nil || a.root == nil {
		return nil
	}
	for i := 0; i+1 < len(a.root.Content); i += 2 {
		if a.root.Content[i].Value == key {
			return a.root.Content[i+1]
		}
	}
	return nil
}
