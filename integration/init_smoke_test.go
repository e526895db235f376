package integration_test

import (
	"os"
	"path/filepath"
	"testing"

	"fitsched/integration/harness"
)

func TestInitSmoke(t *testing.T) {
	binPath := harness.BuildBinary(t)
	runDir := t.TempDir()
	workspaceRoot := filepath.Join(t.TempDir(), "workspace-init")

	stdout, stderr, code := harness.Run(t, binPath, runDir, []string{"init", "--workspace", workspaceRoot})
	if code != 0 {
		t.Fatalf("fitsched init exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}

	paths := []string{
		filepath.Join(workspaceRoot, "config", "goals.yml"),
		filepath.Join(workspaceRoot, "config", "templates.yml"),
		filepath.Join(workspaceRoot, "state"),
		filepath.Join(workspaceRoot, "logs"),
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("missing init path %s: %v", path, err)
		}
	}

	// Init is idempotent: a second run keeps the existing configs.
	if _, _, code := harness.Run(t, binPath, runDir, []string{"init", "--workspace", workspaceRoot}); code != 0 {
		t.Fatalf("second init exit code %d", code)
	}
}
