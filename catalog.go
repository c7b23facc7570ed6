package tagscan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jward/tagscan/catalogs"
	"github.com/jward/tagscan/internal/catalog"
	"github.com/jward/tagscan/internal/runtime"
)

// ErrUnknownVersion is returned by LoadCatalog for a version with no
// definition script.
var ErrUnknownVersion = catalog.ErrUnknownVersion

type catalogConfig struct {
	fsys      fs.FS
	wordlists []string
	logger    *slog.Logger
}

// CatalogOption configures LoadCatalog.
type CatalogOption func(*catalogConfig)

// WithCatalogFS loads definitions from fsys instead of the embedded
// catalogs. fsys must have the same layout: versions/<version>.risor plus
// importable modules at the top level.
func WithCatalogFS(fsys fs.FS) CatalogOption {
	return func(c *catalogConfig) { c.fsys = fsys }
}

// WithWordlistFile adds a local wordlist, one string per line, to the known
// string hashes. It may be given more than once.
func WithWordlistFile(path string) CatalogOption {
	return func(c *catalogConfig) { c.wordlists = append(c.wordlists, path) }
}

// WithCatalogLogger receives messages logged by definition scripts.
func WithCatalogLogger(logger *slog.Logger) CatalogOption {
	return func(c *catalogConfig) { c.logger = logger }
}

// LoadCatalog evaluates the definition script of version. Every script and
// wordlist byte consumed feeds the catalog's cache key.
func LoadCatalog(ctx context.Context, version string, opts ...CatalogOption) (*Catalog, error) {
	cfg := catalogConfig{fsys: catalogs.FS, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}

	if strings.ContainsAny(version, `/\`) || version == "" {
		return nil, fmt.Errorf("tagscan: %w: %q", ErrUnknownVersion, version)
	}
	script := filepath.ToSlash(runtime.CatalogScriptPath(version))
	if _, err := fs.Stat(cfg.fsys, script); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("tagscan: %w: %q", ErrUnknownVersion, version)
		}
		return nil, fmt.Errorf("tagscan: catalog %s: %w", version, err)
	}

	b := catalog.NewBuilder(version)
	sources, err := scriptSources(cfg.fsys)
	if err != nil {
		return nil, fmt.Errorf("tagscan: catalog %s: %w", version, err)
	}
	for _, p := range sources {
		src, err := fs.ReadFile(cfg.fsys, p)
		if err != nil {
			return nil, fmt.Errorf("tagscan: catalog %s: %w", version, err)
		}
		b.AddSource(p, src)
	}

	rt := runtime.NewRuntime(b, "", runtime.WithRuntimeFS(cfg.fsys), runtime.WithLogger(cfg.logger))
	if err := rt.RunScript(ctx, script, nil); err != nil {
		return nil, fmt.Errorf("tagscan: catalog %s: %w", version, err)
	}

	for _, p := range cfg.wordlists {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("tagscan: wordlist: %w", err)
		}
		n := b.AddWordlist(filepath.Base(p), data)
		cfg.logger.Debug("wordlist loaded", "path", p, "strings", n)
	}

	cat, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("tagscan: %w", err)
	}
	return cat, nil
}

// scriptSources returns every .risor file in fsys, sorted by path. Modules
// a version imports are among them, so editing any shared module changes
// every cache key.
func scriptSources(fsys fs.FS) ([]string, error) {
	var paths []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && path.Ext(p) == ".risor" {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// CatalogVersions lists the embedded catalog versions.
func CatalogVersions() []string {
	entries, err := fs.ReadDir(catalogs.FS, "versions")
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".risor"); ok && !e.IsDir() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
