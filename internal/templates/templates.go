// Package templates parses template documents and ships the built-in templates.
// Built-ins are seeded on startup; a file with the same id in the templates
// directory overrides the built-in because it is loaded afterwards.
package templates

import (
	"embed"
	"fmt"
	"path"
	"sort"

	"github.com/ternarybob/stayreel/internal/models"
)

//go:embed builtin/*
var fs embed.FS

const builtinDir = "builtin"

// Builtin parses every embedded template, sorted by id
func Builtin() ([]*models.StoredTemplate, error) {
	names, err := ListBuiltin()
	if err != nil {
		return nil, err
	}

	out := make([]*models.StoredTemplate, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(path.Join(builtinDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read built-in template %s: %w", name, err)
		}
		format, _ := FormatFromPath(name)
		stored, err := parseNamed(data, format, name, "builtin:"+name)
		if err != nil {
			return nil, fmt.Errorf("built-in template %s: %w", name, err)
		}
		out = append(out, stored)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListBuiltin returns the file names of all embedded templates
func ListBuiltin() ([]string, error) {
	entries, err := fs.ReadDir(builtinDir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := FormatFromPath(entry.Name()); ok {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
