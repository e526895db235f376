package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveAndEnsureDirs(t *testing.T) {
	root := t.TempDir()
	ws, err := Resolve(root)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ws.Root != root {
		t.Fatalf("root = %q, want %q", ws.Root, root)
	}
	if !strings.HasPrefix(ws.GoalsPath, root) || !strings.HasSuffix(ws.GoalsPath, filepath.Join("config", "goals.yml")) {
		t.Fatalf("unexpected goals path %q", ws.GoalsPath)
	}
	if ws.LockPath != ws.GoalsPath+".lock" {
		t.Fatalf("lock must be keyed by the config path, got %q", ws.LockPath)
	}

	if err := ws.EnsureDirs(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	for _, dir := range []string{ws.StateDir, ws.LogsDir, filepath.Dir(ws.GoalsPath)} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("missing dir %s: %v", dir, err)
		}
	}
}

func TestResolveMissingRoot(t *testing.T) {
	if _, err := Resolve(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing root")
	}
	if _, err := Resolve(""); err == nil {
		t.Fatal("expected error for empty root")
	}
}

func TestResolvePath(t *testing.T) {
	root := t.TempDir()
	ws, err := Resolve(root)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, err := ws.ResolvePath("sub/file.yml")
	if err != nil {
		t.Fatalf("resolve path: %v", err)
	}
	if got != filepath.Join(root, "sub", "file.yml") {
		t.Fatalf("relative paths resolve from root, got %q", got)
	}
	abs := filepath.Join(root, "abs.yml")
	if got, _ := ws.ResolvePath(abs); got != abs {
		t.Fatalf("absolute paths pass through, got %q", got)
	}
}
