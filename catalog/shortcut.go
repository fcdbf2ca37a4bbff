package catalog

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Shortcut describes a discovered or user-added launch entry. Target is the
// absolute path of the executable the shortcut resolves to; identity is the
// lower-cased Target, since host paths are case-insensitive.
type Shortcut struct {
	Target    string
	Name      string
	Arguments string
	Deletable bool
}

func (s Shortcut) key() string {
	return strings.ToLower(s.Target)
}

// ResolvedShortcut is the outcome of resolving one shortcut file.
type ResolvedShortcut struct {
	Target    string
	Arguments string
}

// ShortcutResolver resolves a shortcut file to its stored target and
// arguments. Implementations live with the host integration; corrupt or
// unsupported shortcuts surface as errors and are treated by callers as
// "no shortcut here".
type ShortcutResolver interface {
	Resolve(path string) (ResolvedShortcut, error)
}

const shortcutExt = ".lnk"

// scanShortcutDirs walks every configured root concurrently and resolves
// each shortcut file found. Roots that do not exist are skipped; any other
// enumeration failure is propagated. Shortcuts that fail to resolve are
// silently dropped.
func scanShortcutDirs(dirs []string, resolver ShortcutResolver) ([]Shortcut, error) {
	var (
		mu        sync.Mutex
		shortcuts []Shortcut
	)

	var g errgroup.Group
	for _, dir := range dirs {
		dir := dir
		g.Go(func() error {
			found, err := scanShortcutDir(dir, resolver)
			if err != nil {
				return err
			}
			mu.Lock()
			shortcuts = append(shortcuts, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return shortcuts, nil
}

func scanShortcutDir(dir string, resolver ShortcutResolver) ([]Shortcut, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	var shortcuts []Shortcut
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), shortcutExt) {
			return nil
		}

		resolved, err := resolver.Resolve(path)
		if err != nil {
			slog.Debug("dropping unresolvable shortcut", "path", path, "err", err)
			return nil
		}
		if resolved.Target == "" {
			return nil
		}

		shortcuts = append(shortcuts, Shortcut{
			Target:    resolved.Target,
			Name:      shortcutDisplayName(path),
			Arguments: resolved.Arguments,
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "enumerating shortcut directory %s", dir)
	}
	return shortcuts, nil
}

// removeDuplicates collapses shortcuts resolving to the same target. When a
// duplicate appears, the variant carrying invocation arguments wins.
func removeDuplicates(shortcuts []Shortcut) []Shortcut {
	index := make(map[string]int, len(shortcuts))
	out := make([]Shortcut, 0, len(shortcuts))

	for _, s := range shortcuts {
		i, ok := index[s.key()]
		if !ok {
			index[s.key()] = len(out)
			out = append(out, s)
			continue
		}
		if out[i].Arguments == "" && s.Arguments != "" {
			out[i] = s
		}
	}
	return out
}

func shortcutDisplayName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// baseName returns the last path element, accepting both separator styles
// since targets recorded in shortcuts use backslashes regardless of the
// scanning host.
func baseName(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
