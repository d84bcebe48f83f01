// Package loader reads corpus documents off the filesystem and turns
// them into pipeline documents.
package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"medrag/internal/domain"
)

var extensions = map[string]bool{
	".md":  true,
	".txt": true,
}

// FromDir walks root and loads every markdown and plain-text file into a
// document. The document ID is the slugged path relative to root, the
// title comes from the first markdown heading when present, and the
// category is the first directory component under root (empty for files
// directly in root). Results are sorted by ID so ingestion runs are
// reproducible.
func FromDir(root string) ([]domain.Document, error) {
	var docs []domain.Document
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		doc, err := load(path, rel)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading corpus from %s: %w", root, err)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// FromFiles loads an explicit list of files, keeping the given order.
// Category is left empty; callers set it when they know the corpus
// taxonomy.
func FromFiles(paths []string) ([]domain.Document, error) {
	docs := make([]domain.Document, 0, len(paths))
	for _, path := range paths {
		doc, err := load(path, filepath.Base(path))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func load(path, rel string) (domain.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("reading %s: %w", path, err)
	}
	text := string(raw)
	return domain.Document{
		ID:       slug(rel),
		Title:    title(rel, text),
		Source:   path,
		Category: category(rel),
		Text:     text,
	}, nil
}

// slug strips the extension and normalizes separators so IDs stay stable
// across platforms.
func slug(rel string) string {
	s := strings.TrimSuffix(rel, filepath.Ext(rel))
	s = filepath.ToSlash(s)
	return strings.ReplaceAll(s, " ", "-")
}

// title prefers the first markdown heading, falling back to the file
// name.
func title(rel, text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			if h := strings.TrimSpace(strings.TrimLeft(line, "#")); h != "" {
				return h
			}
		}
	}
	base := filepath.Base(rel)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func category(rel string) string {
	dir := filepath.ToSlash(filepath.Dir(rel))
	if dir == "." {
		return ""
	}
	parts := strings.SplitN(dir, "/", 2)
	return parts[0]
}
