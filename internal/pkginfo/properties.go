package pkginfo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Property keys of the package file.
const (
	PropName         = "name"
	PropDisplayName  = "displayName"
	PropVersion      = "version"
	PropDescription  = "description"
	PropDependencies = "dependencies"
)

// propertyRe matches `"key": value` at the start of a line or after an
// opening brace or comma, so minified files match too. Group 4 is the inner
// text of a string value, group 5 a bare literal. Object and array values
// do not match.
var propertyRe = regexp.MustCompile(`(?m)(^\s*|[{,]\s*)"([^"\s]+)"\s*:\s*("((?:[^"\\]|\\.)*)"|([^\s,\{\}\[\]]+))`)

type propertyMatch struct {
	key        string
	valueStart int
	valueEnd   int
	quoted     bool
	inner      string
}

// topLevelProperties returns the matches whose key sits directly in the
// outermost object.
func topLevelProperties(text string) []propertyMatch {
	var (
		out []propertyMatch
		ds  depthScanner
	)
	ds.text = text
	for _, m := range propertyRe.FindAllStringSubmatchIndex(text, -1) {
		if ds.advance(m[4]-1) != 1 {
			continue
		}
		pm := propertyMatch{
			key:        text[m[4]:m[5]],
			valueStart: m[6],
			valueEnd:   m[7],
			quoted:     m[8] >= 0,
		}
		if pm.quoted {
			pm.inner = text[m[8]:m[9]]
		} else {
			pm.inner = text[m[10]:m[11]]
		}
		out = append(out, pm)
	}
	return out
}

// ParseProperties maps each top-level key to its value: string, bool,
// float64 or nil. Objects and arrays are not represented.
func ParseProperties(text string) map[string]any {
	values := make(map[string]any)
	for _, pm := range topLevelProperties(text) {
		if pm.quoted {
			s, err := strconv.Unquote(`"` + pm.inner + `"`)
			if err != nil {
				s = pm.inner
			}
			values[pm.key] = s
			continue
		}
		values[pm.key] = parseLiteral(pm.inner)
	}
	return values
}

// ReplaceProperties rewrites the values of the given top-level keys in place.
// Everything outside the replaced value spans is preserved byte for byte,
// and text without an actual value change is returned unchanged.
func ReplaceProperties(text string, values map[string]any) string {
	if len(values) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, pm := range topLevelProperties(text) {
		value, ok := values[pm.key]
		if !ok {
			continue
		}
		lit := literal(value)
		if lit == text[pm.valueStart:pm.valueEnd] {
			continue
		}
		b.WriteString(text[last:pm.valueStart])
		b.WriteString(lit)
		last = pm.valueEnd
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

// ReadProperties reads the top-level properties of a package file. A missing
// file yields an empty map.
func ReadProperties(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseProperties(string(data)), nil
}

// WriteProperty sets a single property. See WriteProperties.
func WriteProperty(path, key string, value any) (bool, error) {
	return WriteProperties(path, map[string]any{key: value})
}

// WriteProperties patches property values in the file at path. The file is
// only written when its content changes; the result reports whether it did.
func WriteProperties(path string, values map[string]any) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}

	text := string(data)
	newText := ReplaceProperties(text, values)
	if newText == text {
		return false, nil
	}
	if err := writeFileAtomic(path, []byte(newText), info.Mode().Perm()); err != nil {
		return false, err
	}
	return true, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, filepath.Clean(path)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming %s: %w", tmpPath, err)
	}
	return nil
}

func parseLiteral(s string) any {
	switch s {
	case "", "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return nil
}

var stringEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

func literal(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return `"` + stringEscaper.Replace(t) + `"`
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case fmt.Stringer:
		return `"` + stringEscaper.Replace(t.String()) + `"`
	default:
		return `"` + stringEscaper.Replace(fmt.Sprint(t)) + `"`
	}
}

// depthScanner tracks object/array nesting outside string literals while
// moving forward through text.
type depthScanner struct {
	text     string
	pos      int
	depth    int
	inString bool
	escaped  bool
}

func (s *depthScanner) advance(to int) int {
	for ; s.pos < to && s.pos < len(s.text); s.pos++ {
		c := s.text[s.pos]
		if s.inString {
			switch {
			case s.escaped:
				s.escaped = false
			case c == '\\':
				s.escaped = true
			case c == '"':
				s.inString = false
			}
			continue
		}
		switch c {
		case '"':
			s.inString = true
		case '{', '[':
			s.depth++
		case '}', ']':
			s.depth--
		}
	}
	return s.depth
}
