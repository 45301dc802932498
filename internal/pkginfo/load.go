package pkginfo

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mailru/easyjson/jlexer"

	yerrors "github.com/frederic-klein/yapm/internal/errors"
)

// Load reads the package file in dir. It fails when the file is absent,
// unreadable or has no name.
func Load(dir string) (*Descriptor, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, yerrors.NotFoundf("no %s in '%s'", FileName, dir)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	d, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if abs, err := filepath.Abs(dir); err == nil {
		d.Location = abs
	} else {
		d.Location = dir
	}
	return d, nil
}

// Decode parses package file content. Dependency order is preserved.
func Decode(data []byte) (*Descriptor, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, yerrors.Parse("empty package file")
	}

	in := jlexer.Lexer{Data: data}
	d := &Descriptor{}
	decodeDescriptor(&in, d)
	if err := in.Error(); err != nil {
		return nil, yerrors.New(yerrors.ParseFailed, "decoding package file", err)
	}
	if d.Name == "" {
		return nil, yerrors.Parse("package file has no name")
	}
	return d, nil
}

// Reload re-reads the package file from FullDir. On failure the Missing
// flag is set and the previous fields are kept.
func (d *Descriptor) Reload() error {
	dir := d.FullDir()
	if dir == "" {
		return nil
	}
	fresh, err := Load(dir)
	if err != nil {
		d.Flags.Missing = true
		return err
	}
	d.Flags.Missing = false
	d.Name = fresh.Name
	d.DisplayName = fresh.DisplayName
	d.Version = fresh.Version
	d.Description = fresh.Description
	d.Dependencies = fresh.Dependencies
	d.parsed = nil
	return nil
}

func decodeDescriptor(in *jlexer.Lexer, d *Descriptor) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		in.Skip()
		return
	}
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
			d.Name = in.String()
		case "displayName":
			d.DisplayName = in.String()
		case "version":
			d.Version = flexString(in)
		case "description":
			d.Description = in.String()
		case "dependencies":
			d.Dependencies = decodeDependencies(in)
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

func decodeDependencies(in *jlexer.Lexer) []Dependency {
	var deps []Dependency
	in.Delim('{')
	for !in.IsDelim('}') {
		name := in.String()
		in.WantColon()
		deps = append(deps, Dependency{Name: name, Version: flexString(in)})
		in.WantComma()
	}
	in.Delim('}')
	return deps
}

// flexString reads a string or number value as a string.
func flexString(in *jlexer.Lexer) string {
	switch v := in.Interface().(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return ""
	}
}
