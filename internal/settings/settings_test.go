package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	yerrors "github.com/frederic-klein/yapm/internal/errors"
	"github.com/frederic-klein/yapm/internal/repository"
)

func TestLoad_Missing(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "settings.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Settings().Registry.IsSet() || len(s.Settings().Repositories) != 0 {
		t.Errorf("Load() = %+v, want empty", s.Settings())
	}
}

func TestSaveLoad(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "cfg", "settings.toml")
	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Settings().Registry = Registry{Address: "localhost", Port: 4873, AuthToken: "secret"}
	libs := repository.New("libs", "/srv/libs")
	libs.ExcludePaths = []string{"^archive/"}
	s.Settings().Repositories = append(s.Settings().Repositories, libs)

	// Act
	if err := s.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := Load(path)

	// Assert
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got := loaded.Settings()
	if got.Registry != (Registry{Address: "localhost", Port: 4873, AuthToken: "secret"}) {
		t.Errorf("Registry = %+v", got.Registry)
	}
	r, ok := got.Repository("libs")
	if !ok || r.URL != "/srv/libs" || len(r.ExcludePaths) != 1 {
		t.Errorf("Repository() = %+v, %v", r, ok)
	}
	if _, ok := got.Repository("none"); ok {
		t.Error("unexpected repository")
	}
}

func TestSave_OnlyWhenChanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Settings().Registry.Address = "localhost"
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	if err := s.Save(); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(old) {
		t.Error("unchanged settings were rewritten")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	if err := os.WriteFile(path, []byte("[registry\naddress = "), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)

	if !yerrors.Is(err, yerrors.ParseFailed) {
		t.Errorf("Load() error = %v, want PARSE_ERROR", err)
	}
}

func TestRegistry_IsSet(t *testing.T) {
	tests := []struct {
		reg  Registry
		want bool
	}{
		{Registry{}, false},
		{Registry{Address: "localhost"}, false},
		{Registry{AuthToken: "t"}, false},
		{Registry{Address: "localhost", AuthToken: "t"}, true},
	}
	for _, tt := range tests {
		if got := tt.reg.IsSet(); got != tt.want {
			t.Errorf("%+v.IsSet() = %v, want %v", tt.reg, got, tt.want)
		}
	}
}
