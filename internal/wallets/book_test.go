package wallets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWallets(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wallets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Lists(t *testing.T) {
	path := writeWallets(t, "flagged:\n  - rugger1\n  - rugger2\nwhales:\n  - whale1\n")

	b, err := Load(path)
	require.NoError(t, err)
	assert.True(t, b.Flagged("rugger1"))
	assert.True(t, b.Flagged("rugger2"))
	assert.False(t, b.Flagged("whale1"))
	assert.True(t, b.Whale("whale1"))
	assert.False(t, b.Whale("rugger1"))
}

func TestLoad_MissingFileIsEmptyBook(t *testing.T) {
	b, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.False(t, b.Flagged("anyone"))
	assert.False(t, b.Whale("anyone"))
}

func TestLoad_EmptyPathIsEmptyBook(t *testing.T) {
	b, err := Load("")
	require.NoError(t, err)
	assert.False(t, b.Flagged("anyone"))
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := Load(writeWallets(t, "flagged: {not a list"))
	assert.Error(t, err)
}

func TestReload_ReplacesLists(t *testing.T) {
	path := writeWallets(t, "flagged:\n  - old\n")
	b, err := Load(path)
	require.NoError(t, err)
	require.True(t, b.Flagged("old"))

	require.NoError(t, os.WriteFile(path, []byte("flagged:\n  - new\n"), 0o644))
	require.NoError(t, b.reload(path))
	assert.False(t, b.Flagged("old"))
	assert.True(t, b.Flagged("new"))
}
