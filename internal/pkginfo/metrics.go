package pkginfo

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultCodeExtensions are the source file extensions counted by CountCode.
var DefaultCodeExtensions = []string{".cs"}

// CountCode sets TotalCodeFiles and TotalCodeLines (non-blank lines) for the
// package's source files. Cache packages and packages without a local
// directory are left at zero.
func CountCode(d *Descriptor, extensions []string) error {
	d.TotalCodeFiles = 0
	d.TotalCodeLines = 0
	if d.Flags.PackageCache {
		return nil
	}
	dir := d.FullDir()
	if dir == "" {
		return nil
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil
	}
	if len(extensions) == 0 {
		extensions = DefaultCodeExtensions
	}

	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			// unreadable entries are skipped
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if entry.IsDir() || !hasExtension(path, extensions) {
			return nil
		}
		n, err := countLines(path)
		if err != nil {
			return fmt.Errorf("counting %s: %w", path, err)
		}
		d.TotalCodeFiles++
		d.TotalCodeLines += n
		return nil
	})
}

func hasExtension(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	for _, e := range extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			count++
		}
	}
	return count, scanner.Err()
}
