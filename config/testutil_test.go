package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempINI(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mf_config.ini")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing temp ini: %v", err)
	}
	return path
}

func overwriteFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("overwriting ini: %v", err)
	}
}
