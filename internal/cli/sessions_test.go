package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListStoredSessions(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"alice.session", "bob.session"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("{}"), 0600))
	}
	// Files outside the naming scheme are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0600))
	require.NoError(t, os.Mkdir(filepath.Join(root, "media"), 0700))

	names, err := listStoredSessions(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)
}

func TestListStoredSessions_MissingRoot(t *testing.T) {
	names, err := listStoredSessions(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, names)
}
