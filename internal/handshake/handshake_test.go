package handshake

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyMissingSourceTokenAborts(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := t.TempDir()

	token, ok, err := Verify(sourceDir, sinkDir)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, token)
}

func TestVerifyFirstRunAdoptsSourceToken(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := t.TempDir()
	token := uuid.NewString() // real runs stamp started_at.txt with a fresh run identifier, not a fixed string
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, FileName), []byte(token), 0o644))

	got, ok, err := Verify(sourceDir, sinkDir)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, token, got)

	sinkBytes, err := os.ReadFile(filepath.Join(sinkDir, FileName))
	require.NoError(t, err)
	assert.Equal(t, token, string(sinkBytes))
}

func TestVerifyConflictWhenSinkNonEmptyWithoutToken(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, FileName), []byte("abc123"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sinkDir, "part_def_00000.zip"), []byte("zip"), 0o644))

	_, ok, err := Verify(sourceDir, sinkDir)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestVerifyMatchingTokensIsANoOp(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, FileName), []byte("abc123"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sinkDir, FileName), []byte("abc123"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sinkDir, "part_def_00000.zip"), []byte("zip"), 0o644))

	token, ok, err := Verify(sourceDir, sinkDir)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc123", token)

	// untouched
	_, err = os.Stat(filepath.Join(sinkDir, "part_def_00000.zip"))
	assert.NoError(t, err)
}

func TestVerifyMismatchedTokenWipesOwnedFilesOnly(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, FileName), []byte("new-token"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sinkDir, FileName), []byte("old-token"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sinkDir, "part_def_00000.zip"), []byte("zip"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sinkDir, "operator-notes.txt"), []byte("keep me"), 0o644))

	token, ok, err := Verify(sourceDir, sinkDir)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "new-token", token)

	_, err = os.Stat(filepath.Join(sinkDir, "part_def_00000.zip"))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(sinkDir, "operator-notes.txt"))
	assert.NoError(t, err)

	sinkBytes, err := os.ReadFile(filepath.Join(sinkDir, FileName))
	require.NoError(t, err)
	assert.Equal(t, "new-token", string(sinkBytes))
}

func TestVerifyOwnsAnySubdirectory(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, FileName), []byte("new-token"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sinkDir, FileName), []byte("old-token"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(sinkDir, "graph-a"), 0o755))

	_, ok, err := Verify(sourceDir, sinkDir)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = os.Stat(filepath.Join(sinkDir, "graph-a"))
	assert.True(t, os.IsNotExist(err))
}
