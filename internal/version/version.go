// Package version implements package versions with one to four numeric
// fields and an optional pre-release track, e.g. "1.2", "1.0.3.7" or
// "2.1-preview.3".
//
// The grammar is deliberately narrower than SemVer: the pre-release part is
// always an identifier, a single separator ("-" or ".") and a counter.
package version

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	yerrors "github.com/frederic-klein/yapm/internal/errors"
)

// Field indexes a numeric version field.
type Field int

const (
	Major Field = iota
	Minor
	Build
	Revision
)

// None selects no numeric field in PreIncrement.
const None Field = -1

// MaxFields is the maximum number of numeric fields.
const MaxFields = 4

var fieldNames = [MaxFields]string{"major", "minor", "build", "revision"}

// String returns the lowercase field name.
func (f Field) String() string {
	if f >= 0 && int(f) < MaxFields {
		return fieldNames[f]
	}
	return "none"
}

// ParseField maps a field name ("major", "minor", "build", "revision",
// "none") to a Field.
func ParseField(s string) (Field, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "none" {
		return None, nil
	}
	for i, name := range fieldNames {
		if name == s {
			return Field(i), nil
		}
	}
	return None, yerrors.Invalid("unknown version field '%s'", s)
}

// Separators lists the accepted pre-release separators.
var Separators = []string{"-", "."}

// Version is an immutable version value. The zero value is Empty.
type Version struct {
	fields [MaxFields]int
	count  int
	hasPre bool
	preID  string
	preSep string
	pre    int
}

// Empty is the canonical empty version (no fields).
var Empty = Version{}

var versionRe = regexp.MustCompile(`^(\d+)((?:\.\d+)*)(?:-(\S+?)([-.])(\d+))?$`)

// New creates a version from explicit field values.
func New(fields ...int) (Version, error) {
	if len(fields) == 0 || len(fields) > MaxFields {
		return Empty, yerrors.Invalid("version needs 1 to %d fields, got %d", MaxFields, len(fields))
	}
	var v Version
	for i, n := range fields {
		if n < 0 {
			return Empty, yerrors.Invalid("negative version field %d", n)
		}
		v.fields[i] = n
	}
	v.count = len(fields)
	return v, nil
}

// Parse parses a version string. Surrounding whitespace is ignored.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Empty, yerrors.Parse("empty version")
	}

	m := versionRe.FindStringSubmatch(s)
	if m == nil {
		return Empty, yerrors.Parse("invalid version '%s'", s)
	}

	parts := []string{m[1]}
	if m[2] != "" {
		parts = append(parts, strings.Split(m[2][1:], ".")...)
	}
	if len(parts) > MaxFields {
		return Empty, yerrors.Parse("version '%s' has %d fields, max %d", s, len(parts), MaxFields)
	}

	var v Version
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Empty, yerrors.Parse("invalid version field '%s' in '%s'", p, s)
		}
		v.fields[i] = n
	}
	v.count = len(parts)

	if m[3] != "" {
		n, err := strconv.Atoi(m[5])
		if err != nil {
			return Empty, yerrors.Parse("invalid pre-release counter '%s' in '%s'", m[5], s)
		}
		v.hasPre = true
		v.preID = m[3]
		v.preSep = m[4]
		v.pre = n
	}
	return v, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FieldCount returns the number of numeric fields (0 for Empty).
func (v Version) FieldCount() int { return v.count }

// IsEmpty reports whether v is the empty version.
func (v Version) IsEmpty() bool { return v.count == 0 }

// Field returns the value of field f.
func (v Version) Field(f Field) (int, error) {
	if f < 0 || int(f) >= v.count {
		return 0, yerrors.Invalid("field %s out of range, version has %d fields", f, v.count)
	}
	return v.fields[f], nil
}

func (v Version) Major() int    { return v.fields[Major] }
func (v Version) Minor() int    { return v.fields[Minor] }
func (v Version) Build() int    { return v.fields[Build] }
func (v Version) Revision() int { return v.fields[Revision] }

func (v Version) HasPre() bool         { return v.hasPre }
func (v Version) PreID() string        { return v.preID }
func (v Version) PreSeparator() string { return v.preSep }
func (v Version) Pre() int             { return v.pre }

// WithPre returns a copy of v carrying the given pre-release track.
func (v Version) WithPre(id, sep string, n int) (Version, error) {
	if v.IsEmpty() {
		return Empty, yerrors.Invalid("empty version cannot carry a pre-release")
	}
	if err := checkPre(id, sep); err != nil {
		return Empty, err
	}
	if n < 0 {
		return Empty, yerrors.Invalid("negative pre-release counter %d", n)
	}
	v.hasPre = true
	v.preID = id
	v.preSep = sep
	v.pre = n
	return v, nil
}

// Equal reports whether v and o denote the same version. The pre-release
// separator does not take part.
func (v Version) Equal(o Version) bool {
	if v.count != o.count {
		return false
	}
	for i := 0; i < v.count; i++ {
		if v.fields[i] != o.fields[i] {
			return false
		}
	}
	if v.hasPre || o.hasPre {
		if v.hasPre != o.hasPre || v.preID != o.preID || v.pre != o.pre {
			return false
		}
	}
	return true
}

// EqualPtr compares possibly nil versions. A nil version equals only Empty.
func EqualPtr(a, b *Version) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil:
		return b.IsEmpty()
	case b == nil:
		return a.IsEmpty()
	}
	return a.Equal(*b)
}

// Compare returns -1, 0 or +1.
//
// Pre-release counters are only compared when both pre-release ids match.
// Versions whose numeric fields tie but whose ids differ (including a
// release against a pre-release) compare as 0.
func (v Version) Compare(o Version) int {
	if c := cmpInt(v.fields[Major], o.fields[Major]); c != 0 {
		return c
	}
	for f := Minor; f <= Revision; f++ {
		if v.count > int(f) || o.count > int(f) {
			if c := cmpInt(v.fields[f], o.fields[f]); c != 0 {
				return c
			}
		}
	}
	if (v.hasPre || o.hasPre) && v.preID == o.preID {
		return cmpInt(v.pre, o.pre)
	}
	return 0
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// Increment returns a copy with field f bumped, every subordinate field
// reset to 0 and the pre-release dropped.
func (v Version) Increment(f Field) (Version, error) {
	if f < 0 || int(f) >= v.count {
		return Empty, yerrors.Invalid("cannot increment %s, version has %d fields", f, v.count)
	}
	n := v
	n.fields[f]++
	for i := int(f) + 1; i < MaxFields; i++ {
		n.fields[i] = 0
	}
	n.hasPre = false
	n.preID = ""
	n.preSep = ""
	n.pre = 0
	return n, nil
}

// IncrementLast increments the least significant present field.
func (v Version) IncrementLast() (Version, error) {
	return v.Increment(Field(v.count - 1))
}

// PreIncrement returns the next pre-release.
//
// With a field, that field is incremented and a fresh track starts at 0.
// With None, a matching track has its counter bumped; otherwise the last
// field is incremented and the track starts at 0.
func (v Version) PreIncrement(f Field, preID, sep string) (Version, error) {
	if err := checkPre(preID, sep); err != nil {
		return Empty, err
	}

	var (
		n   Version
		err error
	)
	switch {
	case f != None:
		if n, err = v.Increment(f); err != nil {
			return Empty, err
		}
	case v.hasPre && v.preID == preID:
		n = v
		n.pre++
	default:
		if n, err = v.IncrementLast(); err != nil {
			return Empty, err
		}
	}

	n.hasPre = true
	n.preID = preID
	n.preSep = sep
	return n, nil
}

// String formats the version. Empty formats to "".
func (v Version) String() string {
	if v.count == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < v.count; i++ {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(v.fields[i]))
	}
	if v.hasPre {
		b.WriteByte('-')
		b.WriteString(v.preID)
		b.WriteString(v.preSep)
		b.WriteString(strconv.Itoa(v.pre))
	}
	return b.String()
}

// Hash returns a hash consistent with Equal. Empty hashes to 0.
func (v Version) Hash() uint64 {
	var h uint64
	for i := 0; i < v.count; i++ {
		h += uint64(v.fields[i])
		if i > 0 {
			h += uint64(i)
		}
	}
	if v.hasPre {
		h += xxhash.Sum64String(v.preID) + uint64(v.pre)
	}
	return h
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty text yields Empty.
func (v *Version) UnmarshalText(text []byte) error {
	if strings.TrimSpace(string(text)) == "" {
		*v = Empty
		return nil
	}
	p, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = p
	return nil
}

func checkPre(id, sep string) error {
	if id == "" {
		return yerrors.Invalid("pre-release id is empty")
	}
	if strings.ContainsAny(id, " \t\r\n") {
		return yerrors.Invalid("pre-release id '%s' contains whitespace", id)
	}
	if sep == "" {
		return yerrors.Invalid("pre-release separator is empty")
	}
	for _, s := range Separators {
		if s == sep {
			return nil
		}
	}
	return yerrors.Invalid("unsupported pre-release separator '%s'", sep)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
