package sessions

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SessionFileSuffix is the fixed suffix appended to every session storage
// file. The protocol client treats the file as an opaque credential blob.
const SessionFileSuffix = ".session"

// Resolver maps session names to storage paths and back. Pure except for
// EnsureDir.
type Resolver struct {
	root string
}

// NewResolver creates a resolver rooted at the given storage directory.
func NewResolver(root string) *Resolver {
	return &Resolver{root: filepath.Clean(root)}
}

// Root returns the configured storage root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve maps a session name to its canonical storage path. The name must
// be non-empty after trimming whitespace and path separators.
func (r *Resolver) Resolve(name string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(name), "/\\")
	if trimmed == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.Contains(trimmed, "..") || strings.ContainsAny(trimmed, "/\\\x00") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(r.root, trimmed+SessionFileSuffix), nil
}

// Name is the inverse of Resolve. It returns the session name encoded in
// path, or "" when the path does not match the root/suffix shape. Absence
// is not an error; callers decide how to handle it.
func (r *Resolver) Name(path string) string {
	cleaned := filepath.Clean(path)
	dir, file := filepath.Split(cleaned)
	if filepath.Clean(dir) != r.root {
		return ""
	}
	if !strings.HasSuffix(file, SessionFileSuffix) {
		return ""
	}
	name := strings.TrimSuffix(file, SessionFileSuffix)
	if name == "" {
		return ""
	}
	return name
}

// EnsureDir creates the parent directory of a session path if it does not
// exist, inheriting permissions from the storage root's parent when
// available. Returns a *StorageInitError when creation fails and the
// directory is still absent.
func (r *Resolver) EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return nil
	}

	mode := fs.FileMode(0o700)
	if info, err := os.Stat(filepath.Dir(dir)); err == nil {
		mode = info.Mode().Perm()
	}

	mkErr := os.MkdirAll(dir, mode)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return nil
	}
	return &StorageInitError{Path: dir, Err: mkErr}
}
