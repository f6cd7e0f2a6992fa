package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuarantineCheckPasses(t *testing.T) {
	q := NewQuarantineChecker(t.TempDir())
	require.NoError(t, q.Check(context.Background()))
}

func TestQuarantineCheckDetectsSentinel(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "failed.ldif"), []byte(""), 0o644))

	q := NewQuarantineChecker(dir)
	err := q.Check(context.Background())
	require.ErrorIs(t, err, ErrQuarantine)
}
