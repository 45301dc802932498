package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/frederic-klein/yapm/internal/config"
	yerrors "github.com/frederic-klein/yapm/internal/errors"
)

const manifestText = `{
  "dependencies": {
    "com.unity.ugui": "1.0.0"
  },
  "scopedRegistries": []
}
`

type fixture struct {
	root    string
	repoDir string
	cfg     *config.Config
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	project := filepath.Join(root, "project")
	repoDir := filepath.Join(root, "repo")

	write(t, filepath.Join(project, "Packages", "manifest.json"), manifestText)
	write(t, filepath.Join(repoDir, "a", "package.json"),
		`{"name": "com.example.a", "displayName": "Example Alpha", "version": "1.0.0", "dependencies": {"com.example.b": "2.0.0"}}`)
	write(t, filepath.Join(repoDir, "a", "Runtime", "A.cs"), "class A {}\n")
	write(t, filepath.Join(repoDir, "b", "package.json"),
		`{"name": "com.example.b", "version": "2.0.0", "dependencies": {"com.example.a": "1.0.0"}}`)

	cfg := &config.Config{
		ProjectDir:          project,
		PackagesDir:         filepath.Join(project, "Packages"),
		ManifestFile:        "manifest.json",
		SettingsPath:        filepath.Join(root, "home", "settings.toml"),
		ProjectSettingsPath: filepath.Join(project, "ProjectSettings", "yapm.toml"),
		CodeExtensions:      []string{".cs"},
	}
	return &fixture{root: root, repoDir: repoDir, cfg: cfg}
}

func (f *fixture) open(t *testing.T) *Workspace {
	t.Helper()
	w, err := Open(f.cfg, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return w
}

// openScanned opens a workspace with the fixture repository registered
// and scanned.
func (f *fixture) openScanned(t *testing.T) *Workspace {
	t.Helper()
	ctx := context.Background()
	w := f.open(t)
	r, err := w.AddRepository(ctx, "", f.repoDir)
	if err != nil {
		t.Fatalf("AddRepository() error = %v", err)
	}
	if _, err := w.ScanRepository(ctx, r.Name); err != nil {
		t.Fatalf("ScanRepository() error = %v", err)
	}
	return w
}

func TestWorkspace_LoadAndScan(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()

	// Act
	w := f.openScanned(t)
	repos, err := w.Repositories(ctx)

	// Assert
	if err != nil {
		t.Fatalf("Repositories() error = %v", err)
	}
	if len(repos) != 2 || repos[0].Name != ProjectRepositoryName || repos[1].Name != "repo" {
		t.Fatalf("repositories = %v", repos)
	}
	a, ok := w.PackageInfo("com.example.a")
	if !ok {
		t.Fatal("PackageInfo(com.example.a) not found")
	}
	if a.Path != "a" || a.TotalCodeFiles != 1 || !a.Flags.Local {
		t.Errorf("package a = %+v", a)
	}
	if _, err := os.Stat(filepath.Join(f.repoDir, ".packages", "repository.yaml")); err != nil {
		t.Errorf("repository document not written: %v", err)
	}
	if _, err := w.Repository(ctx, "none"); !yerrors.Is(err, yerrors.NotFound) {
		t.Errorf("Repository(none) error = %v", err)
	}
}

func TestWorkspace_AllDependencies(t *testing.T) {
	f := newFixture(t)
	w := f.openScanned(t)

	got := w.AllDependencies("com.example.a")

	if len(got) != 2 {
		t.Fatalf("AllDependencies() = %v", got)
	}
	if got[0].Name != "com.example.a" || got[0].Version != "file:../../repo/a" {
		t.Errorf("root entry = %+v", got[0])
	}
	if got[1].Name != "com.example.b" || got[1].Version != "2.0.0" {
		t.Errorf("dependency entry = %+v", got[1])
	}
	if direct := w.DirectDependencies("com.example.b"); len(direct) != 1 || direct[0].Name != "com.example.a" {
		t.Errorf("DirectDependencies() = %v", direct)
	}
	if w.AllDependencies("com.example.none") != nil {
		t.Error("AllDependencies of an unknown package is not empty")
	}
}

func TestWorkspace_Favorites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.openScanned(t)

	if _, err := w.AddPackage(ctx, "com.example.a", ""); !yerrors.Is(err, yerrors.NotFound) {
		t.Errorf("AddPackage() without favorite error = %v", err)
	}
	added, err := w.AddFavorite(ctx, "com.example.a")
	if err != nil || !added {
		t.Fatalf("AddFavorite() = %v, %v", added, err)
	}
	if again, _ := w.AddFavorite(ctx, "com.example.a"); again {
		t.Error("AddFavorite() twice reported a change")
	}

	reopened := f.open(t)
	if err := reopened.LoadRepositories(ctx); err != nil {
		t.Fatalf("LoadRepositories() error = %v", err)
	}
	star, ok := reopened.StarPackageInfo("com.example.a")
	if !ok || !star.IsFavorite() {
		t.Fatal("favorite not persisted")
	}
	if ref, ok := reopened.LocalReference("com.example.a"); !ok || ref != "file:../../repo/a" {
		t.Errorf("LocalReference() = %q, %v", ref, ok)
	}

	removed, err := reopened.RemoveFavorite(ctx, "com.example.a")
	if err != nil || !removed {
		t.Fatalf("RemoveFavorite() = %v, %v", removed, err)
	}
	if _, ok := reopened.StarPackageInfo("com.example.a"); ok {
		t.Error("favorite still present after removal")
	}
}

func TestWorkspace_ManifestOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.openScanned(t)
	if _, err := w.AddFavorite(ctx, "com.example.a"); err != nil {
		t.Fatal(err)
	}

	changed, err := w.AddLocalPackage(ctx, "com.example.a")
	if err != nil || !changed {
		t.Fatalf("AddLocalPackage() = %v, %v", changed, err)
	}
	if v, _ := w.Manifest().Version("com.example.a"); v != "file:../../repo/a" {
		t.Errorf("manifest version = %q", v)
	}
	a, _ := w.PackageInfo("com.example.a")
	if !a.Flags.LocalUsed || !a.Flags.ManifestUsed || a.Flags.VersionUsed {
		t.Errorf("flags after AddLocalPackage = %s", a.Flags)
	}

	if _, err := w.AddPackage(ctx, "com.example.b", "2.0.0"); err != nil {
		t.Fatalf("AddPackage() error = %v", err)
	}
	b, _ := w.PackageInfo("com.example.b")
	if !b.Flags.VersionUsed {
		t.Errorf("flags after AddPackage = %s", b.Flags)
	}

	data, _ := os.ReadFile(f.cfg.ManifestPath())
	if !strings.Contains(string(data), `"scopedRegistries": []`) {
		t.Errorf("manifest lost text outside the dependency block:\n%s", data)
	}

	removed, err := w.RemovePackage(ctx, "com.example.b")
	if err != nil || !removed {
		t.Fatalf("RemovePackage() = %v, %v", removed, err)
	}
	if w.Manifest().Has("com.example.b") {
		t.Error("manifest still declares com.example.b")
	}
	if b.Flags.ManifestUsed {
		t.Error("flags not recomputed after RemovePackage")
	}
}

func TestWorkspace_Links(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.openScanned(t)
	symlinkCheck := filepath.Join(f.root, "symlinkCheck")
	if err := os.Symlink(f.repoDir, symlinkCheck); err != nil {
		t.Skipf("symlinks not available: %v", err)
	}

	link, err := w.LinkPackage(ctx, "com.example.a")
	if err != nil {
		t.Fatalf("LinkPackage() error = %v", err)
	}
	if link != filepath.Join(f.cfg.PackagesDir, "a") {
		t.Errorf("link = %q", link)
	}
	a, _ := w.PackageInfo("com.example.a")
	if !a.Flags.LinkUsed {
		t.Errorf("flags after LinkPackage = %s", a.Flags)
	}

	unlinked, ok, err := w.UnlinkPackage(ctx, "com.example.a")
	if err != nil || !ok || unlinked != link {
		t.Fatalf("UnlinkPackage() = %q, %v, %v", unlinked, ok, err)
	}
	if a.Flags.LinkUsed {
		t.Error("LinkUsed still set after UnlinkPackage")
	}
	if _, err := os.Lstat(link); !os.IsNotExist(err) {
		t.Errorf("link still present: %v", err)
	}
}

func TestWorkspace_CopyToPackages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.openScanned(t)
	target := filepath.Join(f.cfg.PackagesDir, "com.example.a@1.0.0")

	action, path, err := w.CopyToPackages(ctx, "com.example.a")
	if err != nil || action != CopyCreated || path != target {
		t.Fatalf("CopyToPackages() = %s, %q, %v", action, path, err)
	}
	if _, err := os.Stat(filepath.Join(target, "Runtime", "A.cs")); err != nil {
		t.Errorf("copied file missing: %v", err)
	}

	action, _, err = w.CopyToPackages(ctx, "com.example.a")
	if err != nil || action != CopyUnchanged {
		t.Errorf("CopyToPackages() of undeclared copy = %s, %v", action, err)
	}

	if _, err := w.AddPackage(ctx, "com.example.a", "1.0.0"); err != nil {
		t.Fatal(err)
	}
	action, _, err = w.CopyToPackages(ctx, "com.example.a")
	if err != nil || action != CopyDeleted {
		t.Errorf("CopyToPackages() of declared copy = %s, %v", action, err)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Errorf("copy still present: %v", err)
	}
}

func TestWorkspace_Search(t *testing.T) {
	f := newFixture(t)
	w := f.openScanned(t)

	got, err := w.Search(context.Background(), "alpha")

	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].Package.Name != "com.example.a" || got[0].Repository != "repo" {
		t.Errorf("Search(alpha) = %+v", got)
	}
	all, _ := w.Search(context.Background(), "")
	if len(all) != 2 {
		t.Errorf("Search(\"\") returned %d packages", len(all))
	}
}

func TestWorkspace_Repositories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.openScanned(t)

	if _, err := w.AddRepository(ctx, "other", f.repoDir); !yerrors.Is(err, yerrors.StateConflict) {
		t.Errorf("AddRepository() duplicate url error = %v", err)
	}
	if _, err := w.AddRepository(ctx, "", ""); !yerrors.Is(err, yerrors.InvalidArgument) {
		t.Errorf("AddRepository() empty url error = %v", err)
	}

	if err := w.RemoveRepository("repo"); err != nil {
		t.Fatalf("RemoveRepository() error = %v", err)
	}
	repos, err := w.Repositories(ctx)
	if err != nil || len(repos) != 1 {
		t.Errorf("repositories after removal = %v, %v", repos, err)
	}
	if err := w.RemoveRepository("repo"); !yerrors.Is(err, yerrors.NotFound) {
		t.Errorf("RemoveRepository() twice error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.repoDir, ".packages", "repository.yaml")); err != nil {
		t.Errorf("repository document removed with the record: %v", err)
	}
}

func TestWorkspace_IsProjectPackage(t *testing.T) {
	f := newFixture(t)
	write(t, filepath.Join(f.cfg.ProjectDir, "Assets", "Local", "package.json"), `{"name": "com.example.local", "version": "0.1.0"}`)
	write(t, filepath.Join(f.cfg.ProjectDir, "Library", "PackageCache", "com.cached@1.0.0", "package.json"), `{"name": "com.cached", "version": "1.0.0"}`)
	w := f.open(t)

	if err := w.LoadRepositories(context.Background()); err != nil {
		t.Fatalf("LoadRepositories() error = %v", err)
	}

	if !w.IsProjectPackage("com.example.local") {
		t.Error("IsProjectPackage(local) = false")
	}
	if w.IsProjectPackage("com.cached") {
		t.Error("IsProjectPackage(cache package) = true")
	}
	d, ok := w.PackageInfo("com.example.local")
	if !ok || !d.Flags.ProjectUsed {
		t.Errorf("project package flags = %+v", d)
	}
}
