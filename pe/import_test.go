package pe

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/splitscan/splitscan/internal/testpe"
)

func TestImportedLibraries(t *testing.T) {
	tests := []struct {
		name    string
		builder testpe.Builder
		want    []string
	}{
		{
			name:    "two modules in order",
			builder: testpe.Builder{Imports: []string{"ws2_32.dll", "kernel32.dll"}},
			want:    []string{"ws2_32.dll", "kernel32.dll"},
		},
		{
			name:    "two modules 64-bit",
			builder: testpe.Builder{Is64: true, Imports: []string{"ws2_32.dll", "kernel32.dll"}},
			want:    []string{"ws2_32.dll", "kernel32.dll"},
		},
		{
			name: "no import directory",
			builder: testpe.Builder{
				Version: map[string]string{"ProductName": "X"},
			},
			want: nil,
		},
		{
			name: "corrupt table yields empty list",
			builder: testpe.Builder{
				Imports:         []string{"ws2_32.dll"},
				TruncateImports: true,
			},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := buildFile(t, tt.builder)
			assert.Equal(t, tt.want, f.ImportedLibraries())
		})
	}
}
