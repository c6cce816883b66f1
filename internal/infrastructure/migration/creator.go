package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"text/template"
	"time"
)

const upTemplate = `-- Migration: {{.Name}}
-- Created: {{.Created}}
-- Description: {{.Description}}

`

const downTemplate = `-- Migration: {{.Name}} (Rollback)

`

// versionWidth matches the zero padded prefix of the committed migrations
const versionWidth = 6

var versionPattern = regexp.MustCompile(`^(\d+)_.+\.(up|down)\.sql$`)

// File is a generated up/down pair
type File struct {
	Version     uint
	Name        string
	Description string
	Created     string
	UpPath      string
	DownPath    string
}

// Create writes the next numbered up/down pair into dir
func Create(dir, name, description string, now time.Time) (*File, error) {
	slug := slugify(name)
	if slug == "" {
		return nil, fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create migrations directory: %w", err)
	}
	versions, err := Versions(dir)
	if err != nil {
		return nil, err
	}
	next := uint(1)
	if len(versions) > 0 {
		next = versions[len(versions)-1] + 1
	}

	base := fmt.Sprintf("%0*d_%s", versionWidth, next, slug)
	f := &File{
		Version:     next,
		Name:        name,
		Description: description,
		Created:     now.UTC().Format(time.RFC3339),
		UpPath:      filepath.Join(dir, base+".up.sql"),
		DownPath:    filepath.Join(dir, base+".down.sql"),
	}
	if err := render(f.UpPath, upTemplate, f); err != nil {
		return nil, err
	}
	if err := render(f.DownPath, downTemplate, f); err != nil {
		_ = os.Remove(f.UpPath)
		return nil, err
	}
	return f, nil
}

// Versions lists the distinct migration versions in dir in ascending order
func Versions(dir string) ([]uint, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}
	var versions []uint
	for _, e := range entries {
		m := versionPattern.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		v, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			continue
		}
		if !slices.Contains(versions, uint(v)) {
			versions = append(versions, uint(v))
		}
	}
	slices.Sort(versions)
	return versions, nil
}

func render(path, tmpl string, f *File) error {
	t, err := template.New(filepath.Base(path)).Parse(tmpl)
	if err != nil {
		return err
	}
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer out.Close()
	return t.Execute(out, f)
}

// slugify lowercases name and folds runs of separators into one underscore
func slugify(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			pendingSep = true
		}
	}
	return b.String()
}
