package sensu

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveScript locates a script bundled in the package. A single leading
// separator is dropped so absolute-looking paths stay inside the archive.
func ResolveScript(archiveDir, baseDir, script string) (string, error) {
	relative := strings.TrimPrefix(script, "/")
	path := filepath.Join(archiveDir, baseDir, relative)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w with path: %s", ErrScriptNotFound, filepath.Join(baseDir, relative))
	}
	return filepath.Abs(path)
}

// FindPlugin returns the first search path containing the named plugin.
func FindPlugin(searchPaths []string, plugin string) (string, error) {
	for _, dir := range searchPaths {
		path := filepath.Join(dir, plugin)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		return filepath.Abs(path)
	}
	return "", fmt.Errorf("%w: %s (paths searched: %s)", ErrPluginNotFound, plugin, strings.Join(searchPaths, ", "))
}
