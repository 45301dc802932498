package publish

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	yerrors "github.com/frederic-klein/yapm/internal/errors"
	"github.com/frederic-klein/yapm/internal/registry"
	"github.com/frederic-klein/yapm/internal/version"
)

type fakeRepo struct {
	changed    []string
	afterWrite []string
	latest     string
	tagCommit  string
	head       string
	tags       map[string]bool
	remote     string

	statusCalls int
	commits     []string
	created     []string
	pushed      []string
	committed   []string
}

func (f *fakeRepo) ChangedFiles(context.Context) ([]string, error) {
	f.statusCalls++
	if f.statusCalls > 1 {
		return f.afterWrite, nil
	}
	return f.changed, nil
}

func (f *fakeRepo) LatestVersionTag(context.Context) (string, bool, error) {
	return f.latest, f.latest != "", nil
}

func (f *fakeRepo) TagCommit(context.Context, string) (string, error) { return f.tagCommit, nil }
func (f *fakeRepo) HeadCommit(context.Context) (string, error)        { return f.head, nil }

func (f *fakeRepo) TagExists(_ context.Context, tag string) (bool, error) {
	return f.tags[tag], nil
}

func (f *fakeRepo) Commit(_ context.Context, msg string, files ...string) error {
	f.commits = append(f.commits, msg)
	f.committed = append(f.committed, files...)
	return nil
}

func (f *fakeRepo) CreateTag(_ context.Context, tag string) error {
	f.created = append(f.created, tag)
	return nil
}

func (f *fakeRepo) DefaultRemote(context.Context) (string, error) { return f.remote, nil }

func (f *fakeRepo) PushTag(_ context.Context, remote, tag string) error {
	f.pushed = append(f.pushed, remote+" "+tag)
	return nil
}

type fakeRegistry struct {
	published   []string
	unpublished []string
	err         error
}

func (f *fakeRegistry) Publish(_ context.Context, _ registry.Auth, dir string, onOutput func(string)) error {
	f.published = append(f.published, dir)
	onOutput("+ published")
	return f.err
}

func (f *fakeRegistry) Unpublish(_ context.Context, _ registry.Auth, _, name, ver string, onOutput func(string)) error {
	f.unpublished = append(f.unpublished, name+"@"+ver)
	return f.err
}

type fakeVersions map[string]bool

func (f fakeVersions) HasVersion(_ context.Context, name, ver string) (bool, error) {
	return f[name+"@"+ver], nil
}

func writePackage(t *testing.T, ver string) string {
	t.Helper()
	dir := t.TempDir()
	content := "{\n  \"name\": \"com.example.core\",\n  \"version\": \"" + ver + "\",\n  \"unity\": \"2021.3\"\n}\n"
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func readVersion(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.Contains(line, `"version"`) {
			return strings.Trim(strings.TrimSpace(strings.SplitN(line, ":", 2)[1]), `",`)
		}
	}
	return ""
}

func opener(repo *fakeRepo) Opener {
	return func(context.Context, string) (Repo, bool, error) {
		if repo == nil {
			return nil, false, nil
		}
		return repo, true, nil
	}
}

func TestPublish(t *testing.T) {
	// Arrange
	dir := writePackage(t, "1.0.0")
	repo := &fakeRepo{
		latest: "v1.0.0", tagCommit: "aaa", head: "bbb",
		afterWrite: []string{"package.json"},
		remote:     "upstream",
	}
	reg := &fakeRegistry{}
	p := newPublisher(opener(repo), reg, fakeVersions{"com.example.core@1.0.0": true}, nil)
	progress := NewProgress("")
	req := Request{Dir: dir, Bump: Bump{Field: version.Minor}, CreateTag: true, Push: true}

	// Act
	got, err := p.Publish(context.Background(), req, progress)

	// Assert
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got != "1.1.0" || readVersion(t, dir) != "1.1.0" {
		t.Errorf("Publish() = %q, file version %q", got, readVersion(t, dir))
	}
	if len(repo.commits) != 1 || repo.commits[0] != "v1.1.0" || repo.committed[0] != "package.json" {
		t.Errorf("commits = %v %v", repo.commits, repo.committed)
	}
	if len(repo.created) != 1 || repo.created[0] != "v1.1.0" {
		t.Errorf("tags created = %v", repo.created)
	}
	if len(repo.pushed) != 1 || repo.pushed[0] != "upstream v1.1.0" {
		t.Errorf("pushed = %v", repo.pushed)
	}
	if len(reg.published) != 1 {
		t.Errorf("registry publishes = %v", reg.published)
	}
	state := progress.Snapshot()
	if state.Title != "Publish package com.example.core" || state.Message != "+ published" {
		t.Errorf("progress = %+v", state)
	}
}

func TestPublish_Refused(t *testing.T) {
	tests := []struct {
		name     string
		repo     *fakeRepo
		req      Request
		versions fakeVersions
		wantCode yerrors.Code
		wantMsg  string
	}{
		{
			name:     "dirty tree",
			repo:     &fakeRepo{changed: []string{"a.cs", "b.cs", "c.cs", "d.cs"}},
			wantCode: yerrors.StateConflict,
			wantMsg:  "files(4) changed:\na.cs\nb.cs\nc.cs",
		},
		{
			name:     "head already tagged",
			repo:     &fakeRepo{latest: "v1.0.0", tagCommit: "aaa", head: "aaa"},
			req:      Request{Version: "1.0.1"},
			wantCode: yerrors.StateConflict,
			wantMsg:  "not changed",
		},
		{
			name:     "tag exists",
			repo:     &fakeRepo{tags: map[string]bool{"v1.0.1": true}},
			req:      Request{Version: "1.0.1", CreateTag: true},
			wantCode: yerrors.StateConflict,
			wantMsg:  "tag 'v1.0.1' already exists",
		},
		{
			name:     "already published",
			repo:     &fakeRepo{},
			req:      Request{Version: "1.0.1"},
			versions: fakeVersions{"com.example.core@1.0.1": true},
			wantCode: yerrors.StateConflict,
			wantMsg:  "already published",
		},
		{
			name:     "tag outside repository",
			req:      Request{Version: "1.0.1", CreateTag: true},
			wantCode: yerrors.StateConflict,
		},
		{
			name:     "bad version",
			repo:     &fakeRepo{},
			req:      Request{Version: "one"},
			wantCode: yerrors.ParseFailed,
		},
		{
			name:     "bump field out of range",
			repo:     &fakeRepo{},
			req:      Request{Bump: Bump{Field: version.Revision}},
			wantCode: yerrors.InvalidArgument,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writePackage(t, "1.0.0")
			tt.req.Dir = dir
			if tt.req.Bump == (Bump{}) {
				tt.req.Bump = NoBump
			}
			reg := &fakeRegistry{}
			p := newPublisher(opener(tt.repo), reg, tt.versions, nil)

			_, err := p.Publish(context.Background(), tt.req, nil)

			if !yerrors.Is(err, tt.wantCode) {
				t.Fatalf("Publish() error = %v, want %s", err, tt.wantCode)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Publish() error = %q, want %q", err, tt.wantMsg)
			}
			if readVersion(t, dir) != "1.0.0" || len(reg.published) != 0 {
				t.Error("refused publish modified the package or reached the registry")
			}
		})
	}
}

func TestPublish_MissingDir(t *testing.T) {
	p := newPublisher(opener(nil), &fakeRegistry{}, nil, nil)

	_, err := p.Publish(context.Background(), Request{Dir: filepath.Join(t.TempDir(), "none")}, nil)

	if !yerrors.Is(err, yerrors.NotFound) {
		t.Errorf("Publish() error = %v, want NOT_FOUND", err)
	}
}

func TestPublish_OutsideRepository(t *testing.T) {
	dir := writePackage(t, "2.0")
	reg := &fakeRegistry{}
	p := newPublisher(opener(nil), reg, nil, nil)

	got, err := p.Publish(context.Background(), Request{Dir: dir, Bump: Bump{Pre: true, Field: version.None}}, nil)

	if err != nil || got != "2.1-pre.0" {
		t.Fatalf("Publish() = %q, %v", got, err)
	}
	if len(reg.published) != 1 {
		t.Errorf("registry publishes = %v", reg.published)
	}
}

func TestPublish_VersionProperty(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		want     string
		wantCode yerrors.Code
	}{
		{
			name:    "minified file",
			content: `{"name":"com.example.core","version":"1.0.0","unity":"2021.3"}`,
			want:    `{"name":"com.example.core","version":"1.0.1","unity":"2021.3"}`,
		},
		{
			name:     "no version key",
			content:  `{"name": "com.example.core", "unity": "2021.3"}`,
			want:     `{"name": "com.example.core", "unity": "2021.3"}`,
			wantCode: yerrors.ParseFailed,
		},
		{
			name:     "nested version only",
			content:  `{"name": "com.example.core", "author": {"version": "1.0.0"}}`,
			want:     `{"name": "com.example.core", "author": {"version": "1.0.0"}}`,
			wantCode: yerrors.ParseFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			dir := t.TempDir()
			path := filepath.Join(dir, "package.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			repo := &fakeRepo{afterWrite: []string{"package.json"}}
			reg := &fakeRegistry{}
			p := newPublisher(opener(repo), reg, nil, nil)

			// Act
			_, err := p.Publish(context.Background(), Request{Dir: dir, Version: "1.0.1"}, nil)

			// Assert
			if tt.wantCode != "" {
				if !yerrors.Is(err, tt.wantCode) {
					t.Fatalf("Publish() error = %v, want %s", err, tt.wantCode)
				}
				if len(repo.commits) != 0 || len(reg.published) != 0 {
					t.Errorf("failed publish reached git %v or the registry %v", repo.commits, reg.published)
				}
			} else if err != nil {
				t.Fatalf("Publish() error = %v", err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.want {
				t.Errorf("package file = %s, want %s", data, tt.want)
			}
		})
	}
}

func TestPublishAsync(t *testing.T) {
	dir := writePackage(t, "1.0.0")
	p := newPublisher(opener(&fakeRepo{}), &fakeRegistry{}, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job := p.PublishAsync(Request{Dir: dir, Version: "1.0.1"})
	got, err := job.Wait(ctx)

	if err != nil || got != "1.0.1" {
		t.Fatalf("Wait() = %q, %v", got, err)
	}
	if job.ID == "" || job.Progress.Snapshot().Percent != 1 {
		t.Errorf("job = %+v, progress %+v", job, job.Progress.Snapshot())
	}
}

func TestUnpublishAsync(t *testing.T) {
	reg := &fakeRegistry{}
	p := newPublisher(opener(nil), reg, nil, nil)

	job := p.UnpublishAsync(registry.Auth{}, "/pkg", "com.example.core", "1.0.0")
	got, err := job.Wait(context.Background())

	if err != nil || got != "1.0.0" {
		t.Fatalf("Wait() = %q, %v", got, err)
	}
	if len(reg.unpublished) != 1 || reg.unpublished[0] != "com.example.core@1.0.0" {
		t.Errorf("unpublished = %v", reg.unpublished)
	}
	if title := job.Progress.Snapshot().Title; title != "Unpublish package com.example.core@1.0.0" {
		t.Errorf("title = %q", title)
	}
}

func TestJob_WaitCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	job := Start("slow", func(context.Context, *Progress) (string, error) {
		<-release
		return "", nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := job.Wait(ctx); err != context.Canceled {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestBump_Apply(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		bump    Bump
		want    string
		wantErr bool
	}{
		{"none", "1.2.3", NoBump, "1.2.3", false},
		{"minor", "1.2.3", Bump{Field: version.Minor}, "1.3.0", false},
		{"major drops pre", "1.2-pre.4", Bump{Field: version.Major}, "2.0", false},
		{"pre new track", "1.0", Bump{Field: version.None, Pre: true}, "1.1-pre.0", false},
		{"pre continues track", "1.0-preview-1", Bump{Field: version.None, Pre: true}, "1.0-preview-2", false},
		{"pre with field", "1.0.0", Bump{Field: version.Major, Pre: true, PreID: "rc", Separator: "-"}, "2.0.0-rc-0", false},
		{"field out of range", "1.0", Bump{Field: version.Build}, "", true},
		{"bad separator", "1.0", Bump{Field: version.None, Pre: true, Separator: "_"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.bump.Apply(version.MustParse(tt.from))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Apply() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got.String() != tt.want {
				t.Errorf("Apply() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProgress_NilSafe(t *testing.T) {
	var p *Progress
	p.SetMessage("x")
	p.SetPercent(2)
	if (p.Snapshot() != ProgressState{}) {
		t.Error("nil Progress snapshot is not zero")
	}

	p = NewProgress("t")
	p.SetPercent(2)
	if p.Snapshot().Percent != 1 {
		t.Errorf("Percent = %v, want clamped to 1", p.Snapshot().Percent)
	}
}
