// Package storage provides the scratch workspace jobs run in and atomic file
// writes for state kept on disk.
//
// All workspace operations are restricted to the workspace directory to
// prevent path traversal through job-supplied file names.
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Workspace is the scratch directory a single job downloads into and encodes in.
type Workspace struct {
	baseDir string
}

// NewWorkspace creates a Workspace rooted at dir, creating the directory if needed.
func NewWorkspace(dir string) (*Workspace, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0750); err != nil {
		return nil, fmt.Errorf("creating workspace directory: %w", err)
	}

	return &Workspace{baseDir: absPath}, nil
}

// Dir returns the absolute workspace directory.
func (w *Workspace) Dir() string {
	return w.baseDir
}

// ResolvePath resolves a relative path within the workspace.
// Returns an error if the path would escape the workspace or is absolute.
func (w *Workspace) ResolvePath(relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		return "", fmt.Errorf("path escapes workspace: %s (absolute paths not allowed)", relativePath)
	}

	absPath := filepath.Join(w.baseDir, filepath.Clean(relativePath))
	if !strings.HasPrefix(absPath, w.baseDir+string(filepath.Separator)) && absPath != w.baseDir {
		return "", fmt.Errorf("path escapes workspace: %s", relativePath)
	}
	return absPath, nil
}

// Path returns the absolute path of the file called name directly inside the
// workspace. Directory components of name are dropped.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.baseDir, filepath.Base(name))
}

// Exists reports whether name exists in the workspace.
func (w *Workspace) Exists(name string) (bool, error) {
	_, err := os.Stat(w.Path(name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking path: %w", err)
	}
	return true, nil
}

// Rename renames a file inside the workspace.
func (w *Workspace) Rename(from, to string) error {
	if err := os.Rename(w.Path(from), w.Path(to)); err != nil {
		return fmt.Errorf("renaming file: %w", err)
	}
	return nil
}

// Size returns the size in bytes of name.
func (w *Workspace) Size(name string) (int64, error) {
	info, err := os.Stat(w.Path(name))
	if err != nil {
		return 0, fmt.Errorf("getting file info: %w", err)
	}
	return info.Size(), nil
}

// Files lists the names of the regular files in the workspace, sorted.
func (w *Workspace) Files() ([]string, error) {
	entries, err := os.ReadDir(w.baseDir)
	if err != nil {
		return nil, fmt.Errorf("reading workspace: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Clear removes everything inside the workspace, keeping the directory itself.
// The directory is recreated if it was removed externally.
func (w *Workspace) Clear() error {
	entries, err := os.ReadDir(w.baseDir)
	if os.IsNotExist(err) {
		return os.MkdirAll(w.baseDir, 0750)
	}
	if err != nil {
		return fmt.Errorf("reading workspace: %w", err)
	}

	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(w.baseDir, e.Name())); err != nil {
			return fmt.Errorf("removing %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Usage returns the total size in bytes of the files under the workspace.
func (w *Workspace) Usage() (int64, error) {
	var total int64
	err := filepath.WalkDir(w.baseDir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking workspace: %w", err)
	}
	return total, nil
}

// WriteFileAtomic writes data to path through a temporary file in the same
// directory followed by a rename, so readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	tempPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), randomHex(8)))
	if err := os.WriteFile(tempPath, data, perm); err != nil {
		return fmt.Errorf("writing temporary file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming to target: %w", err)
	}
	return nil
}

// randomHex generates a random hex string of the specified length.
func randomHex(n int) string {
	b := make([]byte, n/2+1)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", os.Getpid())
	}
	return hex.EncodeToString(b)[:n]
}
