package gpio

import (
	"os"
	"path/filepath"
	"testing"
)

func newLEDDir(t *testing.T, name string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"trigger", "brightness"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestSysfsOutput(t *testing.T) {
	root := newLEDDir(t, "ACT")

	out, err := NewSysfsOutput(root, "ACT")
	if err != nil {
		t.Fatalf("NewSysfsOutput: %v", err)
	}

	if got := readFile(t, filepath.Join(root, "ACT", "trigger")); got != "none" {
		t.Errorf("trigger: got %q, want none", got)
	}

	if err := out.Assert(); err != nil {
		t.Fatalf("Assert: %v", err)
	}
	if got := readFile(t, filepath.Join(root, "ACT", "brightness")); got != "1" {
		t.Errorf("brightness after Assert: got %q, want 1", got)
	}

	if err := out.Deassert(); err != nil {
		t.Fatalf("Deassert: %v", err)
	}
	if got := readFile(t, filepath.Join(root, "ACT", "brightness")); got != "0" {
		t.Errorf("brightness after Deassert: got %q, want 0", got)
	}

	out.Assert()
	if err := out.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := readFile(t, filepath.Join(root, "ACT", "brightness")); got != "0" {
		t.Errorf("brightness after Close: got %q, want 0", got)
	}
}

func TestSysfsOutputMissing(t *testing.T) {
	if _, err := NewSysfsOutput(t.TempDir(), "nonexistent"); err == nil {
		t.Error("expected error for missing LED")
	}
}
