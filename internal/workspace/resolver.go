// Package workspace handles secure resolution of site workspaces.
// Every job executes inside the workspace directory of its site; a job
// whose workspace cannot be resolved must never stay claimed.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	ErrInvalidSiteName = errors.New("invalid site name")
	ErrOutsideBoundary = errors.New("path outside workspace root")
	ErrNotFound        = errors.New("workspace not found")
)

// siteNameRe restricts site identifiers to characters that are safe in
// a filesystem path.
var siteNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Resolver maps site IDs to workspace directories under a fixed root.
type Resolver struct {
	root string
}

// NewResolver creates a resolver rooted at the given directory.
func NewResolver(root string) *Resolver {
	return &Resolver{root: filepath.Clean(root)}
}

// Resolve returns the workspace directory for a site. The site name is
// validated and the resulting path is checked against the root
// boundary before any filesystem access.
func (r *Resolver) Resolve(siteID string) (string, error) {
	if !siteNameRe.MatchString(siteID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSiteName, siteID)
	}

	path := filepath.Clean(filepath.Join(r.root, siteID))
	if path != r.root && !strings.HasPrefix(path, r.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideBoundary, siteID)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %q", ErrNotFound, siteID)
		}
		return "", fmt.Errorf("stat workspace %q: %w", siteID, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %q is not a directory", ErrNotFound, siteID)
	}

	return path, nil
}
