package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitscan/splitscan/internal/testpe"
)

// mapResolver resolves only the shortcut paths it was seeded with.
type mapResolver map[string]ResolvedShortcut

func (m mapResolver) Resolve(path string) (ResolvedShortcut, error) {
	if r, ok := m[path]; ok {
		return r, nil
	}
	return ResolvedShortcut{}, errors.New("unresolvable shortcut")
}

// countingIcons records how many times each path was asked for an icon.
type countingIcons struct {
	calls map[string]int
}

func (c *countingIcons) ExtractIcon(path string) ([]byte, error) {
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[path]++
	return []byte{0x42}, nil
}

func writeShortcut(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("lnk"), 0o644))
	return path
}

type fixture struct {
	catalog   *Catalog
	icons     *countingIcons
	netExe    string
	plainExe  string
	shortcuts string
}

// newFixture lays out a shortcut directory with two shortcuts: one to an
// executable importing the networking library (mixed case) and one to an
// executable importing kernel32 only.
func newFixture(t *testing.T) fixture {
	t.Helper()

	exeDir := t.TempDir()
	netExe := testpe.WriteFile(t, exeDir, "netapp.exe", testpe.Builder{
		Imports: []string{"WS2_32.dll", "kernel32.dll"},
	})
	plainExe := testpe.WriteFile(t, exeDir, "plainapp.exe", testpe.Builder{
		Imports: []string{"kernel32.dll"},
	})

	shortcutDir := t.TempDir()
	netLnk := writeShortcut(t, shortcutDir, "Net App.lnk")
	plainLnk := writeShortcut(t, shortcutDir, "Plain App.lnk")

	resolver := mapResolver{
		netLnk:   {Target: netExe},
		plainLnk: {Target: plainExe},
	}

	cfg := DefaultConfig()
	cfg.ShortcutDirs = []string{shortcutDir}

	icons := &countingIcons{}
	return fixture{
		catalog:   New(cfg, resolver, icons),
		icons:     icons,
		netExe:    netExe,
		plainExe:  plainExe,
		shortcuts: shortcutDir,
	}
}

func appPaths(apps []Application) []string {
	paths := make([]string, 0, len(apps))
	for _, a := range apps {
		paths = append(paths, a.AbsolutePath)
	}
	return paths
}

func TestListIncludesOnlyNetworkingTargets(t *testing.T) {
	fx := newFixture(t)

	result, err := fx.catalog.List(nil, false)
	require.NoError(t, err)

	assert.False(t, result.FromCache)
	assert.Equal(t, []string{fx.netExe}, appPaths(result.Applications))
	assert.False(t, result.Applications[0].Deletable)
	assert.Equal(t, "Net App", result.Applications[0].Name)
	assert.Equal(t, []byte{0x42}, result.Applications[0].Icon)
}

func TestListServesFromCache(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.catalog.List(nil, false)
	require.NoError(t, err)

	result, err := fx.catalog.List(nil, false)
	require.NoError(t, err)
	assert.True(t, result.FromCache)

	// Cached entries are not recomputed: one icon extraction per target.
	assert.Equal(t, 1, fx.icons.calls[fx.netExe])

	result, err = fx.catalog.List(nil, true)
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Equal(t, 1, fx.icons.calls[fx.netExe])
}

func TestListAllowlistedWithoutNetworkImports(t *testing.T) {
	exeDir := t.TempDir()
	exe := testpe.WriteFile(t, exeDir, "firefox.exe", testpe.Builder{
		Imports: []string{"kernel32.dll"},
	})

	shortcutDir := t.TempDir()
	lnk := writeShortcut(t, shortcutDir, "Firefox.lnk")

	cfg := DefaultConfig()
	cfg.ShortcutDirs = []string{shortcutDir}

	c := New(cfg, mapResolver{lnk: {Target: exe}}, nil)

	result, err := c.List(nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{exe}, appPaths(result.Applications))
}

func TestListExcludesInstallersAndSelf(t *testing.T) {
	exeDir := t.TempDir()
	installer := testpe.WriteFile(t, exeDir, "app-installer.exe", testpe.Builder{
		Imports: []string{"ws2_32.dll"},
	})
	self := testpe.WriteFile(t, exeDir, "vpnclient.exe", testpe.Builder{
		Imports: []string{"ws2_32.dll"},
	})

	shortcutDir := t.TempDir()
	instLnk := writeShortcut(t, shortcutDir, "Setup.lnk")
	selfLnk := writeShortcut(t, shortcutDir, "VPN.lnk")

	cfg := DefaultConfig()
	cfg.ShortcutDirs = []string{shortcutDir}
	cfg.SelfBasename = "vpnclient.exe"

	c := New(cfg, mapResolver{
		instLnk: {Target: installer},
		selfLnk: {Target: self},
	}, nil)

	result, err := c.List(nil, false)
	require.NoError(t, err)
	assert.Empty(t, result.Applications)
}

func TestListExcludesByShortcutName(t *testing.T) {
	exeDir := t.TempDir()
	exe := testpe.WriteFile(t, exeDir, "helper.exe", testpe.Builder{
		Imports: []string{"ws2_32.dll"},
	})

	shortcutDir := t.TempDir()
	// Clean target path, excluded display name.
	lnk := writeShortcut(t, shortcutDir, "Tool Installer.lnk")

	cfg := DefaultConfig()
	cfg.ShortcutDirs = []string{shortcutDir}

	c := New(cfg, mapResolver{lnk: {Target: exe}}, nil)

	result, err := c.List(nil, false)
	require.NoError(t, err)
	assert.Empty(t, result.Applications)
}

func TestListDropsUnresolvableShortcuts(t *testing.T) {
	fx := newFixture(t)
	writeShortcut(t, fx.shortcuts, "Broken.lnk") // not known to the resolver

	result, err := fx.catalog.List(nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{fx.netExe}, appPaths(result.Applications))
}

func TestListPathFilter(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.catalog.Add(fx.plainExe)
	require.NoError(t, err)

	result, err := fx.catalog.List([]string{strings.ToUpper(fx.netExe)}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{fx.netExe}, appPaths(result.Applications))
}

func TestListSortsByDisplayName(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.catalog.Add(fx.plainExe)
	require.NoError(t, err)

	result, err := fx.catalog.List(nil, false)
	require.NoError(t, err)
	require.Len(t, result.Applications, 2)
	assert.Equal(t, "Net App", result.Applications[0].Name)
	assert.Equal(t, "plainapp", result.Applications[1].Name)
}

func TestAddAndRemoveApplication(t *testing.T) {
	fx := newFixture(t)

	app, err := fx.catalog.Add(fx.plainExe)
	require.NoError(t, err)
	assert.True(t, app.Deletable)
	assert.Equal(t, fx.plainExe, app.AbsolutePath)
	assert.NotEmpty(t, app.ID)

	// Adding the same path again returns the cached entry.
	again, err := fx.catalog.Add(fx.plainExe)
	require.NoError(t, err)
	assert.Equal(t, app.ID, again.ID)

	result, err := fx.catalog.List(nil, false)
	require.NoError(t, err)
	assert.Contains(t, appPaths(result.Applications), fx.plainExe)

	fx.catalog.Remove(app)

	result, err = fx.catalog.List(nil, false)
	require.NoError(t, err)
	assert.NotContains(t, appPaths(result.Applications), fx.plainExe)
}

func TestAddKeepsSystemEntryNonDeletable(t *testing.T) {
	fx := newFixture(t)

	result, err := fx.catalog.List(nil, false)
	require.NoError(t, err)
	require.Len(t, result.Applications, 1)
	sys := result.Applications[0]
	require.False(t, sys.Deletable)

	fx.catalog.Remove(sys)

	// The target is still owned by the shortcut cache, so re-adding it must
	// restore a system-discovered entry, not a user-added one.
	app, err := fx.catalog.Add(fx.netExe)
	require.NoError(t, err)
	assert.False(t, app.Deletable)
	assert.Equal(t, "Net App", app.Name)
}

func TestAddShortcutResolvesTarget(t *testing.T) {
	fx := newFixture(t)

	lnk := writeShortcut(t, t.TempDir(), "Extra.lnk")
	fx.catalog.resolver.(mapResolver)[lnk] = ResolvedShortcut{Target: fx.plainExe, Arguments: "--flag"}

	app, err := fx.catalog.Add(lnk)
	require.NoError(t, err)
	assert.Equal(t, fx.plainExe, app.AbsolutePath)
	assert.True(t, app.Deletable)
}

func TestAddUnresolvableShortcutFails(t *testing.T) {
	fx := newFixture(t)

	lnk := writeShortcut(t, t.TempDir(), "Nope.lnk")
	_, err := fx.catalog.Add(lnk)
	assert.Error(t, err)
}
