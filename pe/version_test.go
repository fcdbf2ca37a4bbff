package pe

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/splitscan/splitscan/internal/testpe"
)

func TestVersionStrings(t *testing.T) {
	f := buildFile(t, testpe.Builder{
		Version: map[string]string{
			"ProductName":     "Example App",
			"CompanyName":     "Example Corp",
			"FileDescription": "Example App Launcher",
		},
	})

	strs := f.VersionStrings()
	assert.Equal(t, "Example App", strs["ProductName"])
	assert.Equal(t, "Example Corp", strs["CompanyName"])
	assert.Equal(t, "Example App Launcher", strs["FileDescription"])
}

func TestVersionStringsMissingFileDescription(t *testing.T) {
	f := buildFile(t, testpe.Builder{
		Version: map[string]string{"ProductName": "Example App"},
	})

	strs := f.VersionStrings()
	assert.Equal(t, "Example App", strs["ProductName"])
	_, ok := strs["FileDescription"]
	assert.False(t, ok)
}

func TestVersionStringsNoResource(t *testing.T) {
	f := buildFile(t, testpe.Builder{Imports: []string{"kernel32.dll"}})

	assert.Empty(t, f.VersionStrings())
}

func TestVersionStringsNonUnicodeTableFallback(t *testing.T) {
	f := buildFile(t, testpe.Builder{
		Version:  map[string]string{"ProductName": "Example App"},
		TableKey: "04090000",
	})

	// No table carries the Unicode codepage tag; the first table is still
	// used as a fallback.
	strs := f.VersionStrings()
	assert.Equal(t, "Example App", strs["ProductName"])
}
