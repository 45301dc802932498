// Package report writes plain-text package listings.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/frederic-klein/yapm/internal/pkginfo"
)

const header = "# yapm package listing: version 1\n"

// Section is one repository's worth of packages.
type Section struct {
	Name     string
	Packages []*pkginfo.Descriptor
}

// Filter selects the packages written by the emitter. A nil filter keeps all.
type Filter func(d *pkginfo.Descriptor) bool

// Emitter writes package listings.
type Emitter struct {
	w      io.Writer
	filter Filter
}

// NewEmitter creates a new listing emitter.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// WithFilter restricts the listing to packages accepted by f.
func (e *Emitter) WithFilter(f Filter) *Emitter {
	e.filter = f
	return e
}

// Emit writes the header and one block per section. Sections keep their
// order; packages within a section are sorted by name. Sections left empty
// by the filter are omitted.
func (e *Emitter) Emit(sections []Section) error {
	if _, err := fmt.Fprint(e.w, header); err != nil {
		return err
	}
	for _, s := range sections {
		if err := e.emitSection(s); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emitter) emitSection(s Section) error {
	pkgs := make([]*pkginfo.Descriptor, 0, len(s.Packages))
	for _, d := range s.Packages {
		if e.filter == nil || e.filter(d) {
			pkgs = append(pkgs, d)
		}
	}
	if len(pkgs) == 0 {
		return nil
	}
	sort.SliceStable(pkgs, func(i, j int) bool {
		return pkgs[i].Name < pkgs[j].Name
	})

	if _, err := fmt.Fprintf(e.w, "REPOSITORY %s\n", s.Name); err != nil {
		return err
	}
	for _, d := range pkgs {
		if err := e.emitPackage(d); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emitter) emitPackage(d *pkginfo.Descriptor) error {
	ver := d.Version
	if ver == "" {
		ver = "undef"
	}
	if _, err := fmt.Fprintf(e.w, "  %s %s\n", d.Name, ver); err != nil {
		return err
	}
	if d.Path != "" {
		if _, err := fmt.Fprintf(e.w, "    path: %s\n", d.Path); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(e.w, "    flags: %s\n", d.Flags); err != nil {
		return err
	}
	if d.TotalCodeFiles > 0 {
		if _, err := fmt.Fprintf(e.w, "    code: %d files, %d lines\n", d.TotalCodeFiles, d.TotalCodeLines); err != nil {
			return err
		}
	}

	if len(d.Dependencies) > 0 {
		if _, err := fmt.Fprint(e.w, "    dependencies:\n"); err != nil {
			return err
		}
		// declaration order is kept
		for _, dep := range d.Dependencies {
			if _, err := fmt.Fprintf(e.w, "      %s %s\n", dep.Name, dep.Version); err != nil {
				return err
			}
		}
	}
	return nil
}
