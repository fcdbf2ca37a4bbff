package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitscan/splitscan/internal/testpe"
)

func TestUsesNetworkImportMatch(t *testing.T) {
	dir := t.TempDir()
	cl := newClassifier(DefaultConfig())

	net := testpe.WriteFile(t, dir, "net.exe", testpe.Builder{
		Imports: []string{"kernel32.dll", "WS2_32.DLL"},
	})
	plain := testpe.WriteFile(t, dir, "plain.exe", testpe.Builder{
		Imports: []string{"kernel32.dll"},
	})

	assert.True(t, cl.UsesNetwork(net))
	assert.False(t, cl.UsesNetwork(plain))
}

func TestUsesNetworkAllowlist(t *testing.T) {
	dir := t.TempDir()
	cl := newClassifier(DefaultConfig())

	exe := testpe.WriteFile(t, dir, "FIREFOX.exe", testpe.Builder{
		Imports: []string{"kernel32.dll"},
	})
	assert.True(t, cl.UsesNetwork(exe))
}

func TestUsesNetworkNonPE(t *testing.T) {
	dir := t.TempDir()
	cl := newClassifier(DefaultConfig())

	path := filepath.Join(dir, "notes.exe")
	require.NoError(t, os.WriteFile(path, []byte("just text, not a binary"), 0o644))

	assert.False(t, cl.UsesNetwork(path))
	assert.False(t, cl.UsesNetwork(filepath.Join(dir, "missing.exe")))
}

func TestDisplayNamePrefersFileDescription(t *testing.T) {
	dir := t.TempDir()

	exe := testpe.WriteFile(t, dir, "tool.exe", testpe.Builder{
		Version: map[string]string{
			"FileDescription": "Example Tool",
			"ProductName":     "Example Suite",
		},
	})
	assert.Equal(t, "Example Tool", displayName(exe))
}

func TestDisplayNameFallsBackToProductName(t *testing.T) {
	dir := t.TempDir()

	exe := testpe.WriteFile(t, dir, "tool.exe", testpe.Builder{
		Version: map[string]string{"ProductName": "Example App"},
	})
	assert.Equal(t, "Example App", displayName(exe))
}

func TestDisplayNameFallsBackToBasename(t *testing.T) {
	dir := t.TempDir()

	exe := testpe.WriteFile(t, dir, "tool.exe", testpe.Builder{
		Imports: []string{"kernel32.dll"},
	})
	assert.Equal(t, "tool", displayName(exe))

	assert.Equal(t, "missing", displayName(filepath.Join(dir, "missing.exe")))
}
