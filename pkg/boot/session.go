package boot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoTemplate indicates neither a node-specific nor a default template
// directory exists. This is a configuration-level failure that aborts the
// install decision for the node.
var ErrNoTemplate = errors.New("no installer template found")

// The three session documents. The installer fetches all of them; a
// missing network-config fails on the node's side long after this code
// ran, so an explicit empty-but-valid default is written instead.
const (
	docUserData      = "user-data"
	docMetaData      = "meta-data"
	docNetworkConfig = "network-config"
)

// defaultNetworkConfig is the placeholder written when no override
// exists: valid for the installer, configures nothing.
const defaultNetworkConfig = "network:\n  version: 2\n"

// SessionPreparer materializes per-node installer sessions from templates.
// TemplateDir holds one subdirectory per node key plus "default";
// SessionDir receives one workspace per node key.
type SessionPreparer struct {
	TemplateDir string
	SessionDir  string
}

// NewSessionPreparer creates a preparer over the two directories.
func NewSessionPreparer(templateDir, sessionDir string) *SessionPreparer {
	return &SessionPreparer{
		TemplateDir: templateDir,
		SessionDir:  sessionDir,
	}
}

// Prepare builds the session workspace for key and returns its path.
// The workspace is always removed and recreated, so repeated calls are
// idempotent and stale leftovers from a previous attempt cannot leak into
// a new install.
func (p *SessionPreparer) Prepare(key string) (string, error) {
	src, err := p.sourceDir(key)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(p.SessionDir, key)
	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("failed to clear session workspace: %w", err)
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return "", fmt.Errorf("failed to create session workspace: %w", err)
	}

	if err := p.renderUserData(src, dest, key); err != nil {
		return "", err
	}
	if err := p.copyMetaData(src, dest); err != nil {
		return "", err
	}
	if err := p.writeNetworkConfig(src, dest); err != nil {
		return "", err
	}

	return dest, nil
}

// sourceDir selects the node-specific template when present, else the
// default.
func (p *SessionPreparer) sourceDir(key string) (string, error) {
	for _, dir := range []string{
		filepath.Join(p.TemplateDir, key),
		filepath.Join(p.TemplateDir, "default"),
	} {
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			return dir, nil
		}
	}
	return "", fmt.Errorf("%w for node %s under %s", ErrNoTemplate, key, p.TemplateDir)
}

// renderUserData substitutes the node key into the primary configuration.
// Both placeholder spellings are accepted because templates come from two
// generations of tooling.
func (p *SessionPreparer) renderUserData(src, dest, key string) error {
	data, err := os.ReadFile(filepath.Join(src, docUserData))
	if err != nil {
		return fmt.Errorf("failed to read %s template: %w", docUserData, err)
	}

	body := string(data)
	body = strings.ReplaceAll(body, "${MAC}", key)
	body = strings.ReplaceAll(body, "{{mac}}", key)

	if err := os.WriteFile(filepath.Join(dest, docUserData), []byte(body), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", docUserData, err)
	}
	return nil
}

// copyMetaData copies the secondary metadata verbatim.
func (p *SessionPreparer) copyMetaData(src, dest string) error {
	data, err := os.ReadFile(filepath.Join(src, docMetaData))
	if err != nil {
		return fmt.Errorf("failed to read %s template: %w", docMetaData, err)
	}
	if err := os.WriteFile(filepath.Join(dest, docMetaData), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", docMetaData, err)
	}
	return nil
}

// writeNetworkConfig copies the override when one exists, otherwise
// writes the explicit empty placeholder. Never omitted.
func (p *SessionPreparer) writeNetworkConfig(src, dest string) error {
	body := []byte(defaultNetworkConfig)
	if data, err := os.ReadFile(filepath.Join(src, docNetworkConfig)); err == nil {
		body = data
	}
	if err := os.WriteFile(filepath.Join(dest, docNetworkConfig), body, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", docNetworkConfig, err)
	}
	return nil
}
