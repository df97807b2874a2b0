package sensu

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nholik/sensu-hooks/internal/appspec"
	"github.com/nholik/sensu-hooks/internal/deployment"
	"github.com/rs/zerolog"
)

func newTestDeployment(t *testing.T) *deployment.Deployment {
	t.Helper()
	root := t.TempDir()
	archive := filepath.Join(root, "archive")
	checks := filepath.Join(root, "checks")
	for _, dir := range []string{archive, checks} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return &deployment.Deployment{
		ID:                "d-2",
		ArchiveDir:        archive,
		Service:           deployment.Service{ID: "svcA", Slice: "blue"},
		InstanceTags:      map[string]string{},
		ReservedTagPrefix: "aws:",
		Sensu:             deployment.SensuSettings{CheckPath: checks},
		Logger:            zerolog.Nop(),
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func decl(id string, props map[string]any) appspec.Declaration {
	return appspec.Declaration{ID: id, Properties: props}
}

func localCheck(name string) map[string]any {
	return map[string]any{"name": name, "local_script": "check-local.sh"}
}
