// Package catalog discovers the installed applications eligible for split
// tunneling. It scans the host's shortcut directories for candidates,
// classifies each target by introspecting its import table, enriches entries
// from the version resource and the icon service, and maintains the shortcut
// and application caches.
package catalog

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Application is one catalog entry, keyed by the lower-cased absolute path.
type Application struct {
	ID           string
	AbsolutePath string
	Name         string
	Icon         []byte
	Deletable    bool
}

// ListResult is the outcome of List. FromCache is true only when no rescan
// was requested and the shortcut cache was already populated.
type ListResult struct {
	FromCache    bool
	Applications []Application
}

// IconExtractor returns an encoded image for an executable. Implementations
// live with the host integration.
type IconExtractor interface {
	ExtractIcon(path string) ([]byte, error)
}

// NopIconExtractor returns no icon for any path.
type NopIconExtractor struct{}

func (NopIconExtractor) ExtractIcon(string) ([]byte, error) { return nil, nil }

// Catalog owns the shortcut cache, the user-added shortcut list and the
// application cache. All mutation goes through the three public operations;
// the mutex serializes them so a scan's cache swap is atomic relative to
// readers.
type Catalog struct {
	cfg        Config
	resolver   ShortcutResolver
	icons      IconExtractor
	classifier *classifier

	mu            sync.Mutex
	shortcutCache map[string]Shortcut
	additional    []Shortcut
	appCache      map[string]Application
}

// New returns an empty catalog. Caches grow lazily on the first List call.
func New(cfg Config, resolver ShortcutResolver, icons IconExtractor) *Catalog {
	if icons == nil {
		icons = NopIconExtractor{}
	}
	return &Catalog{
		cfg:           cfg,
		resolver:      resolver,
		icons:         icons,
		classifier:    newClassifier(cfg),
		shortcutCache: make(map[string]Shortcut),
		appCache:      make(map[string]Application),
	}
}

// List returns the applications eligible for split tunneling, sorted by
// display name. A rescan runs when forced or when the shortcut cache is
// empty; otherwise cached results are served. filter, when non-empty,
// restricts the result to those absolute paths, compared case-insensitively.
func (c *Catalog) List(filter []string, forceRescan bool) (ListResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fromCache := !forceRescan && len(c.shortcutCache) > 0
	if !fromCache {
		if err := c.updateShortcutCache(); err != nil {
			return ListResult{}, err
		}
	}

	c.fillApplicationCache()

	apps := c.collect(filter)
	sort.Slice(apps, func(i, j int) bool {
		return strings.ToLower(apps[i].Name) < strings.ToLower(apps[j].Name)
	})

	return ListResult{FromCache: fromCache, Applications: apps}, nil
}

// Add registers a user-chosen path. A shortcut file is resolved first; a
// plain executable path is taken as-is. Paths already known to either cache
// are skipped. New targets become deletable entries with a best-effort
// display name; targets the scan already discovered stay system-owned.
func (c *Catalog) Add(path string) (Application, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target, arguments := path, ""
	if strings.EqualFold(extOf(path), shortcutExt) {
		resolved, err := c.resolver.Resolve(path)
		if err != nil {
			return Application{}, err
		}
		target, arguments = resolved.Target, resolved.Arguments
	}

	key := strings.ToLower(target)
	if app, ok := c.appCache[key]; ok {
		return app, nil
	}

	// A target still owned by the shortcut cache keeps its system-discovered
	// identity; only unknown targets become user-added entries.
	s, cached := c.shortcutCache[key]
	if !cached {
		s = Shortcut{
			Target:    target,
			Name:      displayName(target),
			Arguments: arguments,
			Deletable: true,
		}
		c.additional = append(c.additional, s)
	}

	app := c.buildEntry(s)
	c.appCache[key] = app
	return app, nil
}

// Remove deletes a user-added entry. The shortcut cache is left untouched,
// so a system-discovered shortcut for the same target reappears on the next
// scan unless excluded upstream.
func (c *Catalog) Remove(app Application) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := strings.ToLower(app.AbsolutePath)

	kept := c.additional[:0]
	for _, s := range c.additional {
		if s.key() != key {
			kept = append(kept, s)
		}
	}
	c.additional = kept

	delete(c.appCache, key)
}

// updateShortcutCache rescans the shortcut directories, filters and
// deduplicates the candidates, classifies each survivor concurrently and
// swaps the cache wholesale. The old cache stays in place if enumeration
// fails.
func (c *Catalog) updateShortcutCache() error {
	shortcuts, err := scanShortcutDirs(c.cfg.ShortcutDirs, c.resolver)
	if err != nil {
		return err
	}

	candidates := make([]Shortcut, 0, len(shortcuts))
	for _, s := range shortcuts {
		if !c.cfg.isExecutable(s.Target) || c.cfg.isExcluded(s.Target) || c.cfg.isExcluded(s.Name) {
			continue
		}
		candidates = append(candidates, s)
	}
	candidates = removeDuplicates(candidates)

	keep := make([]bool, len(candidates))
	var g errgroup.Group
	for i, s := range candidates {
		i, s := i, s
		g.Go(func() error {
			keep[i] = c.classifier.UsesNetwork(s.Target)
			return nil
		})
	}
	// Classification never errors; failures classify as "no network use".
	_ = g.Wait()

	next := make(map[string]Shortcut, len(candidates))
	for i, s := range candidates {
		if keep[i] {
			next[s.key()] = s
		}
	}

	slog.Info("shortcut cache rebuilt",
		"discovered", len(shortcuts),
		"candidates", len(candidates),
		"networking", len(next))

	c.shortcutCache = next
	return nil
}

// fillApplicationCache lazily builds entries for every cached shortcut and
// additional shortcut that has no entry yet. Existing entries are never
// recomputed.
func (c *Catalog) fillApplicationCache() {
	for key, s := range c.shortcutCache {
		if _, ok := c.appCache[key]; !ok {
			c.appCache[key] = c.buildEntry(s)
		}
	}
	for _, s := range c.additional {
		if _, ok := c.appCache[s.key()]; !ok {
			c.appCache[s.key()] = c.buildEntry(s)
		}
	}
}

func (c *Catalog) buildEntry(s Shortcut) Application {
	icon, err := c.icons.ExtractIcon(s.Target)
	if err != nil {
		slog.Debug("icon extraction failed", "path", s.Target, "err", err)
		icon = nil
	}

	name := s.Name
	if name == "" {
		name = displayName(s.Target)
	}

	return Application{
		ID:           uuid.New().String(),
		AbsolutePath: s.Target,
		Name:         name,
		Icon:         icon,
		Deletable:    s.Deletable,
	}
}

func (c *Catalog) collect(filter []string) []Application {
	var wanted map[string]struct{}
	if len(filter) > 0 {
		wanted = make(map[string]struct{}, len(filter))
		for _, p := range filter {
			wanted[strings.ToLower(p)] = struct{}{}
		}
	}

	apps := make([]Application, 0, len(c.appCache))
	for key, app := range c.appCache {
		if wanted != nil {
			if _, ok := wanted[key]; !ok {
				continue
			}
		}
		apps = append(apps, app)
	}
	return apps
}

func extOf(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i:]
	}
	return ""
}
