package daemon

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWatchFileDetectsChanges(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "goals.yml")

	// Missing file that never existed: no change.
	changed, err := watchFile(s, path, "watch_test")
	if err != nil {
		t.Fatalf("watch missing: %v", err)
	}
	if changed {
		t.Fatal("never-seen missing file is not a change")
	}

	if err := os.WriteFile(path, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	// First observation records state without reporting a change.
	changed, err = watchFile(s, path, "watch_test")
	if err != nil {
		t.Fatalf("first watch: %v", err)
	}
	if changed {
		t.Fatal("first observation must not report a change")
	}

	// Unchanged content: no change.
	changed, err = watchFile(s, path, "watch_test")
	if err != nil {
		t.Fatalf("second watch: %v", err)
	}
	if changed {
		t.Fatal("unchanged file reported a change")
	}

	// Content edit: change.
	if err := os.WriteFile(path, []byte("a: 2\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	changed, err = watchFile(s, path, "watch_test")
	if err != nil {
		t.Fatalf("third watch: %v", err)
	}
	if !changed {
		t.Fatal("edited file must report a change")
	}

	// Deletion after being seen: change.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	changed, err = watchFile(s, path, "watch_test")
	if err != nil {
		t.Fatalf("fourth watch: %v", err)
	}
	if !changed {
		t.Fatal("deleted file must report a change")
	}
}
