package node

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDirDefault(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := Dir("")
	want := filepath.Join(home, ".pingme", "data")
	if got != want {
		t.Errorf("Dir(\"\") = %q, want %q", got, want)
	}
}

func TestDirOverride(t *testing.T) {
	got := Dir("/var/lib/pingme")
	if got != "/var/lib/pingme" {
		t.Errorf("Dir(override) = %q", got)
	}
}

func TestDBPath(t *testing.T) {
	got := DBPath("/tmp/x")
	if !strings.HasSuffix(got, filepath.Join("x", "pingme.db")) {
		t.Errorf("DBPath = %q, want suffix x/pingme.db", got)
	}
}

func TestEnsureDir(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	if err := EnsureDir(dataDir); err != nil {
		t.Fatal(err)
	}
	for _, d := range []string{Dir(dataDir), LogDir(dataDir)} {
		info, err := os.Stat(d)
		if err != nil {
			t.Fatalf("%s not created: %v", d, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", d)
		}
	}
}
