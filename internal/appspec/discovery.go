package appspec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	healthchecksDir  = "healthchecks"
	healthchecksFile = "healthchecks.yml"
)

// Declaration is one raw health check as written in the package, keyed by its check id.
type Declaration struct {
	ID         string
	Properties map[string]any
}

// FindHealthChecks extracts the health checks declared for a monitor.
//
// A dedicated healthchecks/<monitor>/healthchecks.yml inside the archive wins over
// the <monitor>_healthchecks section of the appspec; scripts for the former live
// under healthchecks/<monitor>, for the latter at the archive root. A nil slice
// means the package declares no checks for the monitor.
func FindHealthChecks(monitor, archiveDir string, spec *Appspec, logger zerolog.Logger) ([]Declaration, string, error) {
	key := monitor + "_healthchecks"

	baseDir := filepath.Join(healthchecksDir, monitor)
	dedicated := filepath.Join(archiveDir, baseDir, healthchecksFile)
	data, err := os.ReadFile(dedicated)
	switch {
	case err == nil:
		logger.Debug().Str("path", dedicated).Msg("found health check file")
		file, err := Parse(data)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", dedicated, err)
		}
		checks, err := decodeDeclarations(file.lookup(key))
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", dedicated, err)
		}
		if checks != nil {
			return checks, baseDir, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, "", fmt.Errorf("read health check file: %w", err)
	}

	checks, err := decodeDeclarations(spec.lookup(key))
	if err != nil {
		return nil, "", fmt.Errorf("appspec %s: %w", key, err)
	}
	if checks == nil {
		return nil, "", nil
	}
	return checks, "", nil
}

func decodeDeclarations(node *yaml.Node) ([]Declaration, error) {
	if node == nil || node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: health checks must be a mapping of check id to check", node.Line)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	checks := make([]Declaration, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		if valueNode.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: health check %q must be a mapping", valueNode.Line, keyNode.Value)
		}
		props := map[string]any{}
		if err := valueNode.Decode(&props); err != nil {
			return nil, fmt.Errorf("health check %q: %w", keyNode.Value, err)
		}
		checks = append(checks, Declaration{ID: keyNode.Value, Properties: props})
	}
	return checks, nil
}
