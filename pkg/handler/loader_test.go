package handler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dirlistener/dirlistener/pkg/entry"
)

type noopHandler struct{}

func (noopHandler) Handle(ctx context.Context, dn entry.DN, newEntry, oldEntry *entry.Entry, command string) error {
	return nil
}

func TestRegisterBuiltinAppearsInScan(t *testing.T) {
	before := len(builtinMods)
	RegisterBuiltin(Module{
		Manifest: Manifest{Name: "loader-test-builtin", Description: "test builtin"},
		Impl:     noopHandler{},
	})
	defer func() {
		builtinMu.Lock()
		builtinMods = builtinMods[:before]
		builtinMu.Unlock()
	}()

	mods, errs := ScanDirs(nil)
	require.Empty(t, errs)

	var found bool
	for _, m := range mods {
		if m.Name == "loader-test-builtin" {
			found = true
		}
	}
	require.True(t, found)
}

func TestScanDirsReportsUnreadableDir(t *testing.T) {
	_, errs := ScanDirs([]string{filepath.Join(t.TempDir(), "does-not-exist")})
	require.NotEmpty(t, errs)
}

func TestLoadManifestFileDefaultsName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync.manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("description: syncs things\npriority: 5\n"), 0o644))

	m, err := loadManifestFile(path, "sync")
	require.NoError(t, err)
	require.Equal(t, "sync", m.Name)
	require.Equal(t, "syncs things", m.Description)
	require.Equal(t, float64(5), m.Priority)
}

func TestLoadManifestFileRequiresDescription(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: bad\n"), 0o644))

	_, err := loadManifestFile(path, "bad")
	require.Error(t, err)
}

func TestLoadManifestFileMissing(t *testing.T) {
	_, err := loadManifestFile(filepath.Join(t.TempDir(), "missing.manifest.yaml"), "missing")
	require.Error(t, err)
}
