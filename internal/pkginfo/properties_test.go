package pkginfo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const samplePackage = `{
  "name": "com.example.tools",
  "displayName": "Example Tools",
  "version": "1.2.0",
  "unity": "2021.3",
  "hideInEditor": false,
  "priority": 3,
  "author": {
    "name": "Someone",
    "version": "9.9"
  },
  "dependencies": {
    "com.example.core": "1.0.0"
  }
}
`

func TestReplaceProperties_NoChange(t *testing.T) {
	values := map[string]any{
		"name":         "com.example.tools",
		"version":      "1.2.0",
		"hideInEditor": false,
		"priority":     3,
	}

	got := ReplaceProperties(samplePackage, values)

	if got != samplePackage {
		t.Errorf("ReplaceProperties() changed text without value changes:\n%s", got)
	}
}

func TestReplaceProperties_SingleValue(t *testing.T) {
	// Arrange
	want := `{
  "name": "com.example.tools",
  "displayName": "Example Tools",
  "version": "1.3.0-pre.0",
  "unity": "2021.3",
  "hideInEditor": false,
  "priority": 3,
  "author": {
    "name": "Someone",
    "version": "9.9"
  },
  "dependencies": {
    "com.example.core": "1.0.0"
  }
}
`

	// Act
	got := ReplaceProperties(samplePackage, map[string]any{"version": "1.3.0-pre.0"})

	// Assert
	if got != want {
		t.Errorf("ReplaceProperties() =\n%s\nwant\n%s", got, want)
	}
}

func TestReplaceProperties_Literals(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
		want   string
	}{
		{
			name:   "bool",
			values: map[string]any{"hideInEditor": true},
			want:   `"hideInEditor": true,`,
		},
		{
			name:   "number",
			values: map[string]any{"priority": 7},
			want:   `"priority": 7,`,
		},
		{
			name:   "string with spaces",
			values: map[string]any{"displayName": `My "Tools"`},
			want:   `"displayName": "My \"Tools\"",`,
		},
		{
			name:   "null",
			values: map[string]any{"unity": nil},
			want:   `"unity": null,`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReplaceProperties(samplePackage, tt.values)
			if !containsLine(got, tt.want) {
				t.Errorf("ReplaceProperties() missing %q in\n%s", tt.want, got)
			}
		})
	}
}

func TestReplaceProperties_IgnoresNestedKeys(t *testing.T) {
	got := ReplaceProperties(samplePackage, map[string]any{"name": "com.example.renamed"})

	props := ParseProperties(got)
	if props["name"] != "com.example.renamed" {
		t.Errorf("name = %v, want com.example.renamed", props["name"])
	}
	if !containsLine(got, `"name": "Someone"`) {
		t.Errorf("nested author name was modified:\n%s", got)
	}
}

func TestParseProperties(t *testing.T) {
	props := ParseProperties(samplePackage)

	tests := []struct {
		key  string
		want any
	}{
		{"name", "com.example.tools"},
		{"displayName", "Example Tools"},
		{"version", "1.2.0"},
		{"hideInEditor", false},
		{"priority", float64(3)},
	}
	for _, tt := range tests {
		if props[tt.key] != tt.want {
			t.Errorf("props[%q] = %#v, want %#v", tt.key, props[tt.key], tt.want)
		}
	}
	if _, ok := props["com.example.core"]; ok {
		t.Error("nested dependency key reported as top-level property")
	}
	for _, key := range []string{"author", "dependencies"} {
		if v, ok := props[key]; ok {
			t.Errorf("object property %q reported as %#v", key, v)
		}
	}
}

func TestProperties_SingleLine(t *testing.T) {
	// Arrange
	text := `{"name": "com.example.core", "author": {"version": "9.9"}, "version": "1.0.0", "tags": ["a", "b"], "hidden": true}`

	// Act
	props := ParseProperties(text)
	got := ReplaceProperties(text, map[string]any{PropVersion: "1.0.1"})

	// Assert
	if props[PropName] != "com.example.core" || props[PropVersion] != "1.0.0" || props["hidden"] != true {
		t.Errorf("ParseProperties() = %#v", props)
	}
	if _, ok := props["tags"]; ok {
		t.Error("array property reported")
	}
	want := `{"name": "com.example.core", "author": {"version": "9.9"}, "version": "1.0.1", "tags": ["a", "b"], "hidden": true}`
	if got != want {
		t.Errorf("ReplaceProperties() =\n%s\nwant\n%s", got, want)
	}
}

func TestWriteProperties(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(samplePackage), 0644); err != nil {
		t.Fatal(err)
	}

	changed, err := WriteProperty(path, PropVersion, "1.2.0")
	if err != nil {
		t.Fatalf("WriteProperty() error = %v", err)
	}
	if changed {
		t.Error("WriteProperty() with same value reported a change")
	}

	changed, err = WriteProperty(path, PropVersion, "2.0.0")
	if err != nil {
		t.Fatalf("WriteProperty() error = %v", err)
	}
	if !changed {
		t.Error("WriteProperty() with new value reported no change")
	}

	props, err := ReadProperties(path)
	if err != nil {
		t.Fatalf("ReadProperties() error = %v", err)
	}
	if props[PropVersion] != "2.0.0" {
		t.Errorf("version = %v, want 2.0.0", props[PropVersion])
	}

	missing, err := ReadProperties(filepath.Join(dir, "none.json"))
	if err != nil || len(missing) != 0 {
		t.Errorf("ReadProperties(missing) = %v, %v; want empty", missing, err)
	}
}

func containsLine(text, want string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == want {
			return true
		}
	}
	return false
}
