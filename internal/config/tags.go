package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TagsFile is the parsed YAML structure for host instance tags:
// tags: {Environment: prod, aws:autoscaling:groupName: web}
type TagsFile struct {
	Tags map[string]string `yaml:"tags"`
}

// LoadInstanceTags parses a YAML instance-tags file from the given path.
// Returns an empty map if path is empty (no tags file).
func LoadInstanceTags(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instance tags file: %w", err)
	}

	var tf TagsFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse instance tags file: %w", err)
	}

	if err := validateTags(tf.Tags); err != nil {
		return nil, err
	}

	if tf.Tags == nil {
		return map[string]string{}, nil
	}
	return tf.Tags, nil
}

func validateTags(tags map[string]string) error {
	for key := range tags {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("instance tags file contains an empty tag key")
		}
	}
	return nil
}
