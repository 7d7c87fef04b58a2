package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kurasuta/kurasuta-backend/internal/logger"
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func testHash(prefix string) string {
	return prefix + strings.Repeat("0", 64-len(prefix))
}

func TestNewSampleStoreValidatesRoot(t *testing.T) {
	_, err := NewSampleStore("", testLogger())
	assert.Error(t, err)

	_, err = NewSampleStore(filepath.Join(t.TempDir(), "missing"), testLogger())
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = NewSampleStore(file, testLogger())
	assert.Error(t, err)

	_, err = NewSampleStore(t.TempDir(), testLogger())
	assert.NoError(t, err)
}

func TestLocateShardsByHashPrefix(t *testing.T) {
	root := t.TempDir()
	store, err := NewSampleStore(root, testLogger())
	require.NoError(t, err)

	hash := testHash("abc")
	path, err := store.Locate(hash)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "b", "c", hash), path)

	_, err = store.Locate("short")
	assert.Error(t, err)
	_, err = store.Locate(strings.Repeat("../", 21) + "x")
	assert.Error(t, err)
}

func TestEnsurePlaced(t *testing.T) {
	store, err := NewSampleStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	hash := testHash("1f")
	content := []byte("sample bytes")
	require.NoError(t, store.EnsurePlaced(hash, content, false))

	path, err := store.Locate(hash)
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// Placing the same content again must not fail or corrupt the file.
	require.NoError(t, store.EnsurePlaced(hash, content, false))
	require.NoError(t, store.EnsurePlaced(hash, content, true))
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// No stray temp files left behind in the leaf directory.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEnsurePlacedSkipIfPresentKeepsExisting(t *testing.T) {
	store, err := NewSampleStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	hash := testHash("2e")
	require.NoError(t, store.EnsurePlaced(hash, []byte("original"), false))
	require.NoError(t, store.EnsurePlaced(hash, []byte("different"), true))

	path, err := store.Locate(hash)
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)
}

func TestPlaceFileMovesSource(t *testing.T) {
	store, err := NewSampleStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "incoming.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	hash := testHash("3d")
	require.NoError(t, store.PlaceFile(hash, src, false))

	path, err := store.Locate(hash)
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err), "source should be gone after placement")
}
