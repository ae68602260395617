// Package filesystem supplies document handles and ignore patterns from disk.
package filesystem

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/eshaffer321/invoice-matcher/internal/domain/documents"
)

// FileHandle is a PDF below a corpus root
type FileHandle struct {
	root     string
	identity string
}

// Identity is the slash-separated path relative to the corpus root
func (h FileHandle) Identity() string { return h.identity }

// Read loads the whole file
func (h FileHandle) Read() ([]byte, error) {
	return os.ReadFile(filepath.Join(h.root, filepath.FromSlash(h.identity)))
}

// ListDocumentHandles walks root recursively and returns every PDF, sorted
// by identity. When selected is non-empty only those first-level
// subfolders are walked.
func ListDocumentHandles(root string, selected []string) ([]documents.Handle, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("corpus root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus root %s is not a directory", root)
	}

	keep := make(map[string]bool, len(selected))
	for _, s := range selected {
		s = strings.Trim(filepath.ToSlash(s), "/")
		if s != "" {
			keep[s] = true
		}
	}

	var identities []string
	err = fs.WalkDir(os.DirFS(root), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			if len(keep) > 0 && !strings.Contains(p, "/") && !keep[p] {
				return fs.SkipDir
			}
			return nil
		}
		if len(keep) > 0 && !strings.Contains(p, "/") {
			// files directly under root belong to no selected folder
			return nil
		}
		if strings.EqualFold(path.Ext(p), ".pdf") {
			identities = append(identities, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk corpus %s: %w", root, err)
	}

	sort.Strings(identities)
	handles := make([]documents.Handle, 0, len(identities))
	for _, id := range identities {
		handles = append(handles, FileHandle{root: root, identity: id})
	}
	return handles, nil
}

// Subfolders lists the first-level folders of root, for folder selection
func Subfolders(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read corpus root: %w", err)
	}
	folders := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			folders = append(folders, e.Name())
		}
	}
	return folders, nil
}
