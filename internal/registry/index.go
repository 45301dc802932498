package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mailru/easyjson/jlexer"

	yerrors "github.com/frederic-klein/yapm/internal/errors"
	"github.com/frederic-klein/yapm/internal/version"
)

const cacheTTL = 5 * time.Minute

// Package is one published package as reported by the registry.
type Package struct {
	Name        string
	Version     string
	Description string
	Versions    []string
}

type cacheEntry struct {
	pkg     Package
	fetched time.Time
}

// Index reads package metadata from a registry over HTTP. Lookups are
// cached in memory for a few minutes.
type Index struct {
	baseURL string
	client  *http.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewIndex creates an index for the registry at baseURL.
func NewIndex(baseURL string, client *http.Client) *Index {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Index{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		cache:   make(map[string]cacheEntry),
	}
}

// BaseURL returns the registry URL.
func (idx *Index) BaseURL() string { return idx.baseURL }

// Lookup fetches the metadata document of name. An unknown package is
// NOT_FOUND.
func (idx *Index) Lookup(ctx context.Context, name string) (Package, error) {
	idx.mu.Lock()
	if e, ok := idx.cache[name]; ok && time.Since(e.fetched) < cacheTTL {
		idx.mu.Unlock()
		return e.pkg, nil
	}
	idx.mu.Unlock()

	data, err := idx.get(ctx, "/"+url.PathEscape(name))
	if err != nil {
		return Package{}, err
	}
	pkg, err := decodePackument(data)
	if err != nil {
		return Package{}, err
	}
	if pkg.Name == "" {
		pkg.Name = name
	}

	idx.mu.Lock()
	idx.cache[name] = cacheEntry{pkg: pkg, fetched: time.Now()}
	idx.mu.Unlock()
	return pkg, nil
}

// Versions returns the published versions of name, lowest first.
func (idx *Index) Versions(ctx context.Context, name string) ([]string, error) {
	pkg, err := idx.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	return pkg.Versions, nil
}

// HasVersion reports whether name@v is published.
func (idx *Index) HasVersion(ctx context.Context, name, v string) (bool, error) {
	versions, err := idx.Versions(ctx, name)
	if err != nil {
		if yerrors.Is(err, yerrors.NotFound) {
			return false, nil
		}
		return false, err
	}
	for _, pv := range versions {
		if pv == v {
			return true, nil
		}
	}
	return false, nil
}

// Search runs a text search on the registry.
func (idx *Index) Search(ctx context.Context, text string) ([]Package, error) {
	data, err := idx.get(ctx, "/-/v1/search?text="+url.QueryEscape(text))
	if err != nil {
		return nil, err
	}
	return decodeSearch(data)
}

// Invalidate drops cached metadata.
func (idx *Index) Invalidate() {
	idx.mu.Lock()
	idx.cache = make(map[string]cacheEntry)
	idx.mu.Unlock()
}

func (idx *Index) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, idx.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := idx.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, yerrors.NotFoundf("registry has no '%s'", strings.TrimPrefix(path, "/"))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetching %s: HTTP %d", path, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func decodePackument(data []byte) (Package, error) {
	var pkg Package
	in := jlexer.Lexer{Data: data}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "name":
			pkg.Name = in.String()
		case "description":
			pkg.Description = in.String()
		case "dist-tags":
			in.Delim('{')
			for !in.IsDelim('}') {
				tag := in.UnsafeFieldName(false)
				in.WantColon()
				v := in.String()
				if tag == "latest" {
					pkg.Version = v
				}
				in.WantComma()
			}
			in.Delim('}')
		case "versions":
			in.Delim('{')
			for !in.IsDelim('}') {
				pkg.Versions = append(pkg.Versions, strings.Clone(in.UnsafeFieldName(false)))
				in.WantColon()
				in.SkipRecursive()
				in.WantComma()
			}
			in.Delim('}')
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	in.Consumed()
	if err := in.Error(); err != nil {
		return Package{}, yerrors.New(yerrors.ParseFailed, "decoding registry metadata", err)
	}
	sortVersions(pkg.Versions)
	return pkg, nil
}

func decodeSearch(data []byte) ([]Package, error) {
	var out []Package
	in := jlexer.Lexer{Data: data}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if key != "objects" {
			in.SkipRecursive()
			in.WantComma()
			continue
		}
		in.Delim('[')
		for !in.IsDelim(']') {
			in.Delim('{')
			for !in.IsDelim('}') {
				field := in.UnsafeFieldName(false)
				in.WantColon()
				if field == "package" {
					out = append(out, decodeSearchPackage(&in))
				} else {
					in.SkipRecursive()
				}
				in.WantComma()
			}
			in.Delim('}')
			in.WantComma()
		}
		in.Delim(']')
		in.WantComma()
	}
	in.Delim('}')
	in.Consumed()
	if err := in.Error(); err != nil {
		return nil, yerrors.New(yerrors.ParseFailed, "decoding registry search result", err)
	}
	return out, nil
}

func decodeSearchPackage(in *jlexer.Lexer) Package {
	var p Package
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		switch key {
		case "name":
			p.Name = in.String()
		case "version":
			p.Version = in.String()
		case "description":
			p.Description = in.String()
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	return p
}

// sortVersions orders parseable versions by version order and puts the
// rest after them in text order.
func sortVersions(vs []string) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, errA := version.Parse(vs[i])
		b, errB := version.Parse(vs[j])
		switch {
		case errA == nil && errB == nil:
			if c := a.Compare(b); c != 0 {
				return c < 0
			}
			return vs[i] < vs[j]
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return vs[i] < vs[j]
		}
	})
}
