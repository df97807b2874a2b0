package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadInstanceTags_Valid(t *testing.T) {
	tmpDir := t.TempDir()
	yamlFile := filepath.Join(tmpDir, "tags.yaml")

	yaml := `tags:
  Environment: prod
  OwningCluster: web
  aws:autoscaling:groupName: web-blue
`

	if err := os.WriteFile(yamlFile, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	tags, err := LoadInstanceTags(yamlFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(tags) != 3 {
		t.Fatalf("expected 3 tags, got %d", len(tags))
	}
	if tags["Environment"] != "prod" {
		t.Fatalf("unexpected Environment tag: %q", tags["Environment"])
	}
	if tags["aws:autoscaling:groupName"] != "web-blue" {
		t.Fatalf("unexpected reserved tag: %q", tags["aws:autoscaling:groupName"])
	}
}

func TestLoadInstanceTags_EmptyPath(t *testing.T) {
	tags, err := LoadInstanceTags("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tags) != 0 {
		t.Fatalf("expected no tags for empty path, got %+v", tags)
	}
}

func TestLoadInstanceTags_FileNotFound(t *testing.T) {
	_, err := LoadInstanceTags("/nonexistent/path/tags.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInstanceTags_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	yamlFile := filepath.Join(tmpDir, "bad.yaml")

	if err := os.WriteFile(yamlFile, []byte("tags: ["), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	_, err := LoadInstanceTags(yamlFile)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadInstanceTags_NoTagsKey(t *testing.T) {
	tmpDir := t.TempDir()
	yamlFile := filepath.Join(tmpDir, "empty.yaml")

	if err := os.WriteFile(yamlFile, []byte("other: value\n"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	tags, err := LoadInstanceTags(yamlFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tags == nil || len(tags) != 0 {
		t.Fatalf("expected empty non-nil tags, got %+v", tags)
	}
}
