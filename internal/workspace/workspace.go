// Package workspace manages per-project build directories under a shared root.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var errOutsideRoot = errors.New("workspace: path outside root")

// Manager owns project build directories under a common root.
type Manager struct {
	root string
}

// New ensures the workspace root exists.
func New(root string) (*Manager, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("workspace root cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Manager{root: abs}, nil
}

// Root returns the absolute workspace root.
func (m *Manager) Root() string {
	return m.root
}

// Prepare returns an empty directory for projectID, wiping leftovers from a
// previous run.
func (m *Manager) Prepare(projectID string) (string, error) {
	dir, err := m.dirFor(projectID)
	if err != nil {
		return "", err
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("cleanup workspace: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return dir, nil
}

// Cleanup removes dir, which must live under the root.
func (m *Manager) Cleanup(dir string) error {
	if dir == "" {
		return nil
	}
	rel, err := filepath.Rel(m.root, dir)
	if err != nil || rel == "." || rel == "" || strings.HasPrefix(rel, "..") {
		return errOutsideRoot
	}
	return os.RemoveAll(dir)
}

// CleanupByID removes the directory owned by projectID.
func (m *Manager) CleanupByID(projectID string) error {
	dir, err := m.dirFor(projectID)
	if err != nil {
		return err
	}
	return m.Cleanup(dir)
}

func (m *Manager) dirFor(projectID string) (string, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return "", fmt.Errorf("workspace identifier cannot be empty")
	}
	if strings.ContainsAny(projectID, `/\`) || projectID == "." || projectID == ".." {
		return "", fmt.Errorf("invalid workspace identifier %q", projectID)
	}
	return filepath.Join(m.root, projectID), nil
}
