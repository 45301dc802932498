// Package manifest reads and edits the project dependency manifest
// (Packages/manifest.json). Edits patch the "dependencies" block in place;
// everything outside the block is left byte for byte.
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"

	yerrors "github.com/frederic-klein/yapm/internal/errors"
	"github.com/frederic-klein/yapm/internal/pkginfo"
)

// FileName is the manifest file inside the packages directory.
const FileName = "manifest.json"

var (
	blockRe = regexp.MustCompile(`"dependencies"\s*:`)
	entryRe = regexp.MustCompile(`("(?:[^"\\]|\\.)*")\s*:\s*("(?:[^"\\]|\\.)*")`)
)

// LocalResolver resolves the transitive dependencies of a package and the
// manifest reference of a favorite package.
type LocalResolver interface {
	AllDependencies(name string) []pkginfo.Dependency
	LocalReference(name string) (string, bool)
}

// Manifest is a cached view of the manifest file. The dependency list is
// loaded on first use and kept until MarkDirty.
type Manifest struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	loaded bool
	deps   []pkginfo.Dependency
}

// New creates a manifest bound to path.
func New(path string, logger *slog.Logger) *Manifest {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manifest{path: path, logger: logger}
}

// Path returns the manifest file path.
func (m *Manifest) Path() string { return m.path }

// Dir returns the directory holding the manifest.
func (m *Manifest) Dir() string { return filepath.Dir(m.path) }

// MarkDirty drops the cached dependency list.
func (m *Manifest) MarkDirty() {
	m.mu.Lock()
	m.loaded = false
	m.deps = nil
	m.mu.Unlock()
}

// Dependencies returns a copy of the declared dependencies. A missing
// manifest file yields an empty list.
func (m *Manifest) Dependencies() ([]pkginfo.Dependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadLocked(); err != nil {
		return nil, err
	}
	out := make([]pkginfo.Dependency, len(m.deps))
	copy(out, m.deps)
	return out, nil
}

func (m *Manifest) loadLocked() error {
	if m.loaded {
		return nil
	}
	text, err := readText(m.path)
	if err != nil {
		return err
	}
	if text == "" {
		m.deps = nil
	} else {
		deps, err := Parse(text)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", m.path, err)
		}
		m.deps = deps
	}
	m.loaded = true
	return nil
}

// Version returns the declared version string for name.
func (m *Manifest) Version(name string) (string, bool) {
	deps, err := m.Dependencies()
	if err != nil {
		return "", false
	}
	for _, d := range deps {
		if d.Name == name {
			return d.Version, true
		}
	}
	return "", false
}

// Has reports whether name is declared.
func (m *Manifest) Has(name string) bool {
	_, ok := m.Version(name)
	return ok
}

// HasVersion reports whether name is declared with version. Local "file:"
// references are compared as resolved paths.
func (m *Manifest) HasVersion(name, version string) bool {
	declared, ok := m.Version(name)
	if !ok {
		return false
	}
	return VersionEqual(declared, version, m.Dir())
}

// Add declares name at version, replacing any previous entry, and saves.
// The result reports whether the file changed.
func (m *Manifest) Add(name, version string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadLocked(); err != nil {
		return false, err
	}
	changed, err := m.saveLocked(upsert(m.deps, name, version))
	if err != nil {
		return false, err
	}
	m.logger.Info("manifest add", "name", name, "version", version)
	return changed, nil
}

// AddLocal declares name at version like Add, then declares every package
// in its transitive graph that is not yet present and that r resolves to a
// local reference. The declared version of a dependency does not matter.
func (m *Manifest) AddLocal(name, version string, r LocalResolver) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadLocked(); err != nil {
		return false, err
	}
	deps := upsert(m.deps, name, version)
	added := []pkginfo.Dependency{{Name: name, Version: version}}

	for _, dep := range r.AllDependencies(name) {
		if dep.Name == name || indexOf(deps, dep.Name) >= 0 {
			continue
		}
		ref, ok := r.LocalReference(dep.Name)
		if !ok || !pkginfo.IsLocalVersion(ref) {
			continue
		}
		deps = upsert(deps, dep.Name, ref)
		added = append(added, pkginfo.Dependency{Name: dep.Name, Version: ref})
	}
	changed, err := m.saveLocked(deps)
	if err != nil {
		return false, err
	}
	for _, d := range added {
		m.logger.Info("manifest add", "name", d.Name, "version", d.Version)
	}
	return changed, nil
}

// Remove drops the entry for name and saves. It reports false when name was
// not declared.
func (m *Manifest) Remove(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadLocked(); err != nil {
		return false, err
	}
	i := indexOf(m.deps, name)
	if i < 0 {
		return false, nil
	}
	deps := append(append([]pkginfo.Dependency(nil), m.deps[:i]...), m.deps[i+1:]...)
	if _, err := m.saveLocked(deps); err != nil {
		return false, err
	}
	m.logger.Info("manifest remove", "name", name)
	return true, nil
}

// Save writes the cached list back into the manifest file.
func (m *Manifest) Save() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadLocked(); err != nil {
		return false, err
	}
	return m.saveLocked(m.deps)
}

// saveLocked renders deps into the manifest file. The cache is dropped
// after a write and left untouched on failure.
func (m *Manifest) saveLocked(deps []pkginfo.Dependency) (bool, error) {
	text, err := readText(m.path)
	if err != nil {
		return false, err
	}
	if text == "" {
		text = "{\n  \"dependencies\": {}\n}\n"
	}
	newText, err := Render(text, deps)
	if err != nil {
		return false, fmt.Errorf("rendering %s: %w", m.path, err)
	}
	if newText == text {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return false, fmt.Errorf("creating %s: %w", filepath.Dir(m.path), err)
	}
	if err := os.WriteFile(m.path, []byte(newText), 0644); err != nil {
		return false, fmt.Errorf("writing %s: %w", m.path, err)
	}
	m.loaded = false
	m.deps = nil
	return true, nil
}

// Parse extracts the dependency entries of manifest text in file order.
func Parse(text string) ([]pkginfo.Dependency, error) {
	start, end, err := locateBlock(text)
	if err != nil {
		return nil, err
	}
	var deps []pkginfo.Dependency
	for _, m := range entryRe.FindAllStringSubmatch(text[start:end], -1) {
		name, err := unquote(m[1])
		if err != nil {
			return nil, err
		}
		version, err := unquote(m[2])
		if err != nil {
			return nil, err
		}
		deps = upsert(deps, name, version)
	}
	return deps, nil
}

// Render rewrites the interior of the dependency block with deps, sorted by
// name. Text outside the block is kept unchanged.
func Render(text string, deps []pkginfo.Dependency) (string, error) {
	start, end, err := locateBlock(text)
	if err != nil {
		return "", err
	}
	sorted := make([]pkginfo.Dependency, len(deps))
	copy(sorted, deps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	entries := make([]string, len(sorted))
	for i, d := range sorted {
		entries[i] = "\n    " + quote(d.Name) + ": " + quote(d.Version)
	}
	interior := strings.Join(entries, ",")
	if len(entries) > 0 {
		interior += "\n  "
	}
	return text[:start] + interior + text[end:], nil
}

// locateBlock returns the span between the braces of the dependency block.
func locateBlock(text string) (int, int, error) {
	loc := blockRe.FindStringIndex(text)
	if loc == nil {
		return 0, 0, yerrors.Parse("manifest has no \"dependencies\" block")
	}
	open := strings.IndexByte(text[loc[1]:], '{')
	if open < 0 {
		return 0, 0, yerrors.Parse("manifest dependency block has no opening brace")
	}
	start := loc[1] + open + 1
	closing := strings.IndexByte(text[start:], '}')
	if closing < 0 {
		return 0, 0, yerrors.Parse("manifest dependency block is not closed")
	}
	return start, start + closing, nil
}

// VersionEqual compares two declared versions. When either is a "file:"
// reference both are resolved against baseDir and compared as clean,
// slash-normalized absolute paths.
func VersionEqual(a, b, baseDir string) bool {
	if !pkginfo.IsLocalVersion(a) && !pkginfo.IsLocalVersion(b) {
		return a == b
	}
	return resolveLocal(a, baseDir) == resolveLocal(b, baseDir)
}

func resolveLocal(v, baseDir string) string {
	p := v
	if i := strings.Index(p, pkginfo.LocalPrefix); i >= 0 {
		p = p[i+len(pkginfo.LocalPrefix):]
	}
	p = strings.ReplaceAll(p, `\`, "/")
	if !filepath.IsAbs(filepath.FromSlash(p)) && !strings.HasPrefix(p, "/") {
		p = filepath.Join(baseDir, filepath.FromSlash(p))
	}
	if abs, err := filepath.Abs(filepath.FromSlash(p)); err == nil {
		p = abs
	}
	return strings.TrimSuffix(filepath.ToSlash(filepath.Clean(p)), "/")
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func indexOf(deps []pkginfo.Dependency, name string) int {
	for i, d := range deps {
		if d.Name == name {
			return i
		}
	}
	return -1
}

// upsert returns a new list with name declared at version, replacing any
// previous entry. deps is not modified.
func upsert(deps []pkginfo.Dependency, name, version string) []pkginfo.Dependency {
	out := make([]pkginfo.Dependency, 0, len(deps)+1)
	for _, d := range deps {
		if d.Name != name {
			out = append(out, d)
		}
	}
	return append(out, pkginfo.Dependency{Name: name, Version: version})
}

// unquote decodes a JSON string literal, quotes included.
func unquote(lit string) (string, error) {
	in := jlexer.Lexer{Data: []byte(lit)}
	s := in.String()
	if err := in.Error(); err != nil {
		return "", yerrors.New(yerrors.ParseFailed, "invalid manifest string "+lit, err)
	}
	return s, nil
}

// quote encodes s as a JSON string literal.
func quote(s string) string {
	w := jwriter.Writer{NoEscapeHTML: true}
	w.String(s)
	return string(w.Buffer.BuildBytes())
}
