// Package scanner discovers package directories below a repository root.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	yerrors "github.com/frederic-klein/yapm/internal/errors"
	"github.com/frederic-klein/yapm/internal/pkginfo"
)

// CachePrefix is the project-relative location of cache packages.
const CachePrefix = "Library/PackageCache/"

var (
	projectExcludes = []string{`/Library/PackageCache/`, `^(Temp|UserSettings|ProjectSettings|Logs)/`}
	sharedExcludes  = []string{`(^|/)Library/PackageCache/`}
)

// Options controls a single scan.
type Options struct {
	// Root is the repository root directory.
	Root string
	// ExcludeNames are case-insensitive patterns matched against package names.
	ExcludeNames []string
	// ExcludePaths are case-insensitive patterns matched against root-relative,
	// slash separated directory paths.
	ExcludePaths []string
	// Project adds the project default exclusions and flags cache packages.
	Project bool
	// CodeExtensions enables code metrics for the listed extensions.
	CodeExtensions []string
}

// Scanner walks directory trees for package files.
type Scanner struct {
	logger  *slog.Logger
	workers int
}

// New creates a scanner.
func New(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scanner{logger: logger, workers: runtime.GOMAXPROCS(0)}
}

// Scan discovers and loads the packages below opts.Root, sorted by name and
// then version. Directories that fail to load are skipped. A missing root
// yields no packages.
func (s *Scanner) Scan(ctx context.Context, opts Options) ([]*pkginfo.Descriptor, error) {
	start := time.Now()
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", opts.Root, err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, nil
	}

	pathPatterns := opts.ExcludePaths
	if opts.Project {
		pathPatterns = append(append([]string{}, pathPatterns...), projectExcludes...)
	} else {
		pathPatterns = append(append([]string{}, pathPatterns...), sharedExcludes...)
	}
	excludePaths, err := compile(pathPatterns)
	if err != nil {
		return nil, err
	}
	excludeNames, err := compile(opts.ExcludeNames)
	if err != nil {
		return nil, err
	}

	dirs, err := s.FindPackageDirs(ctx, root, excludePaths)
	if err != nil {
		return nil, err
	}

	loaded := make([]*pkginfo.Descriptor, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, dir := range dirs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, err := pkginfo.Load(dir)
			if err != nil {
				return nil
			}
			if matchAny(excludeNames, d.Name) {
				return nil
			}
			d.Path = relative(root, dir)
			if opts.Project && strings.HasPrefix(d.Path+"/", CachePrefix) {
				d.Flags.PackageCache = true
			}
			if len(opts.CodeExtensions) > 0 {
				// metrics are informational
				_ = pkginfo.CountCode(d, opts.CodeExtensions)
			}
			loaded[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	packages := make([]*pkginfo.Descriptor, 0, len(loaded))
	for _, d := range loaded {
		if d != nil {
			packages = append(packages, d)
		}
	}
	Sort(packages)

	s.logger.Info("found packages", "root", root, "count", len(packages), "elapsed", time.Since(start).Round(time.Millisecond))
	return packages, nil
}

// FindPackageDirs returns every directory below root that holds a package
// file. Symbolic links and excluded paths are pruned and package
// directories are not descended into. Sibling subtrees are explored
// concurrently.
func (s *Scanner) FindPackageDirs(ctx context.Context, root string, exclude []*regexp.Regexp) ([]string, error) {
	dirs, err := findPackageDirs(ctx, root, root, exclude)
	if err != nil {
		return nil, err
	}
	sort.Strings(dirs)
	return dirs, nil
}

func findPackageDirs(ctx context.Context, root, dir string, exclude []*regexp.Regexp) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fi, err := os.Lstat(dir)
	if err != nil || fi.Mode()&os.ModeSymlink != 0 || !fi.IsDir() {
		return nil, nil
	}
	if dir != root && matchAny(exclude, relative(root, dir)+"/") {
		return nil, nil
	}
	if _, err := os.Stat(filepath.Join(dir, pkginfo.FileName)); err == nil {
		return []string{dir}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil
	}

	results := make([][]string, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range entries {
		if entry.Type()&os.ModeSymlink != 0 || !entry.IsDir() {
			continue
		}
		child := filepath.Join(dir, entry.Name())
		g.Go(func() error {
			found, err := findPackageDirs(gctx, root, child, exclude)
			if err != nil {
				return err
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []string
	for _, found := range results {
		out = append(out, found...)
	}
	return out, nil
}

// Sort orders packages by name, then version.
func Sort(packages []*pkginfo.Descriptor) {
	sort.SliceStable(packages, func(i, j int) bool {
		a, b := packages[i], packages[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if c := a.ParsedVersion().Compare(b.ParsedVersion()); c != 0 {
			return c < 0
		}
		return a.Path < b.Path
	})
}

func compile(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, yerrors.New(yerrors.InvalidArgument, fmt.Sprintf("invalid exclude pattern %q", p), err)
		}
		out = append(out, re)
	}
	return out, nil
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func relative(root, dir string) string {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return filepath.ToSlash(dir)
	}
	return filepath.ToSlash(rel)
}
