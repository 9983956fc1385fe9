package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// SheetHeader opens a requestsheet with the directive namespace bound to x.
const SheetHeader = `<x:requestsheet xmlns:x="http://xrlt.net/Transform">`

// Sheet wraps body in a requestsheet element.
func Sheet(body string) string {
	return SheetHeader + body + `</x:requestsheet>`
}

// SetupSheetDir creates a temporary directory holding files (name → content).
// Names may contain slashes; parent directories are created.
// It returns the absolute path and fails the test immediately on error.
func SetupSheetDir(t *testing.T, files map[string]string) string {
	t.Helper()

	absPath, err := filepath.Abs(t.TempDir())
	require.NoError(t, err, "Failed to get absolute path for temp dir")

	for name, content := range files {
		path := filepath.Join(absPath, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "Failed to write %s", name)
	}
	return absPath
}
