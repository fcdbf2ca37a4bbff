package catalog

import (
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// Config controls shortcut discovery and network classification.
type Config struct {
	// ShortcutDirs are the roots scanned recursively for shortcut files.
	ShortcutDirs []string `toml:"shortcut_dirs"`

	// NetworkModules are the system networking libraries whose presence in
	// an import table marks an executable as networking-capable. Matched
	// case-insensitively.
	NetworkModules []string `toml:"network_modules"`

	// AllowedBasenames are executables treated as networking-capable
	// without an import scan. Some applications load their networking
	// stack dynamically and never appear to link against it.
	AllowedBasenames []string `toml:"allowed_basenames"`

	// ExcludeSubstrings drop a candidate when its path contains any of
	// them, compared case-insensitively.
	ExcludeSubstrings []string `toml:"exclude_substrings"`

	// ExecutableExtensions are the target extensions accepted as runnable.
	ExecutableExtensions []string `toml:"executable_extensions"`

	// SelfBasename is the VPN client's own executable name, which is never
	// offered for split tunneling. Empty disables the check.
	SelfBasename string `toml:"self_basename"`
}

// DefaultConfig returns the built-in scan policy.
func DefaultConfig() Config {
	return Config{
		NetworkModules: []string{
			"ws2_32.dll",
			"wsock32.dll",
			"winhttp.dll",
			"wininet.dll",
		},
		AllowedBasenames: []string{
			"firefox.exe",
			"chrome.exe",
			"msedge.exe",
			"brave.exe",
			"opera.exe",
			"steam.exe",
		},
		ExcludeSubstrings:    []string{"install", "uninstall"},
		ExecutableExtensions: []string{".exe"},
	}
}

// LoadConfig reads a TOML policy file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "reading catalog config")
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parsing catalog config")
	}
	return cfg, nil
}

func (c Config) isExecutable(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range c.ExecutableExtensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

func (c Config) isExcluded(path string) bool {
	lower := strings.ToLower(path)
	for _, sub := range c.ExcludeSubstrings {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	if c.SelfBasename != "" && strings.EqualFold(baseName(path), c.SelfBasename) {
		return true
	}
	return false
}
