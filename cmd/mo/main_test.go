package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureGitignore(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, ".gitignore")
	require.NoError(t, os.WriteFile(path, []byte("node_modules"), 0o644))

	require.NoError(t, ensureGitignore(root))
	require.NoError(t, ensureGitignore(root))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, "node_modules\n"))
	assert.Equal(t, 1, strings.Count(content, ".mailorders/"))
}

func TestEnsureGitignore_CreatesFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, ensureGitignore(root))

	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(data), ".mailorders/")
}

func TestNeedsStore(t *testing.T) {
	assert.False(t, needsStore(versionCmd))
	assert.False(t, needsStore(initCmd))
	assert.False(t, needsStore(gmailSearchCmd))
	assert.False(t, needsStore(gmailParseCmd))
	assert.True(t, needsStore(syncCmd))
	assert.True(t, needsStore(reconcileCmd))
	assert.True(t, needsStore(ordersCmd))
}
