package catalog

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/h2non/filetype"

	"github.com/splitscan/splitscan/pe"
)

// classifier decides whether an executable performs network I/O. The answer
// comes from the binary itself: either the basename is allow-listed, or the
// import table references one of the configured networking libraries.
type classifier struct {
	networkModules []string
	allowed        map[string]struct{}
}

func newClassifier(cfg Config) *classifier {
	cl := &classifier{
		networkModules: make([]string, 0, len(cfg.NetworkModules)),
		allowed:        make(map[string]struct{}, len(cfg.AllowedBasenames)),
	}
	for _, m := range cfg.NetworkModules {
		cl.networkModules = append(cl.networkModules, strings.ToLower(m))
	}
	for _, b := range cfg.AllowedBasenames {
		cl.allowed[strings.ToLower(b)] = struct{}{}
	}
	return cl
}

// UsesNetwork reports whether the executable at path should be offered for
// split tunneling. Open, sniff and parse failures all classify as "no": a
// malformed candidate must never abort the scan that asked about it.
func (cl *classifier) UsesNetwork(path string) bool {
	if _, ok := cl.allowed[strings.ToLower(baseName(path))]; ok {
		return true
	}

	if !sniffExecutable(path) {
		return false
	}

	f, err := pe.NewFile(path)
	if err != nil {
		slog.Debug("candidate is not a readable PE", "path", path, "err", err)
		return false
	}
	defer f.Close()

	for _, lib := range f.ImportedLibraries() {
		lower := strings.ToLower(lib)
		for _, m := range cl.networkModules {
			if lower == m {
				return true
			}
		}
	}
	return false
}

// sniffExecutable checks the leading bytes look like an MS executable
// before committing to a full header parse.
func sniffExecutable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, 262)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return false
	}
	return filetype.Is(head[:n], "exe")
}

// displayName recovers a human-readable name for an executable from its
// version resource, preferring FileDescription, then ProductName, then the
// file's own basename.
func displayName(path string) string {
	f, err := pe.NewFile(path)
	if err != nil {
		return trimExt(baseName(path))
	}
	defer f.Close()

	strs := f.VersionStrings()
	if v := strings.TrimSpace(strs["FileDescription"]); v != "" {
		return v
	}
	if v := strings.TrimSpace(strs["ProductName"]); v != "" {
		return v
	}
	return trimExt(baseName(path))
}

func trimExt(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}
