package nodeid

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDeriveIsStableAcrossCalls(t *testing.T) {
	base := t.TempDir()
	first, err := Derive(base)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	second, err := Derive(base)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if first != second {
		t.Fatalf("expected stable identity, got %q then %q", first, second)
	}
}

func TestDeriveDiffersAcrossBasePaths(t *testing.T) {
	root := t.TempDir()
	a, err := Derive(filepath.Join(root, "a"))
	if err != nil {
		t.Fatalf("derive a: %v", err)
	}
	b, err := Derive(filepath.Join(root, "b"))
	if err != nil {
		t.Fatalf("derive b: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct identities for distinct base paths")
	}
}

func TestDerivePersistsSaltFile(t *testing.T) {
	base := t.TempDir()
	if _, err := Derive(base); err != nil {
		t.Fatalf("derive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, identityFileName)); err != nil {
		t.Fatalf("expected identity file to be persisted: %v", err)
	}
}
