package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the name of the manifest inside a plugin directory.
const ManifestFile = "plugin.yml"

// DefaultMain is the entry script used when the manifest names none.
const DefaultMain = "main.lua"

// Manifest describes a plugin.
type Manifest struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Main        string   `yaml:"main"`
	Description string   `yaml:"description"`
	Author      string   `yaml:"author"`
	Authors     []string `yaml:"authors"`
	Website     string   `yaml:"website"`

	// Depend lists plugins that must load first.
	Depend []string `yaml:"depend"`

	// SoftDepend lists plugins that load first when present.
	SoftDepend []string `yaml:"softdepend"`

	dir string
}

var (
	namePattern    = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	versionPattern = regexp.MustCompile(`^\d+(\.\d+){0,2}([-+][0-9A-Za-z.-]+)?$`)
)

// LoadManifest reads plugin.yml from dir.
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.dir = dir
	return m, nil
}

// ParseManifest decodes and validates manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if m.Main == "" {
		m.Main = DefaultMain
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks required fields.
func (m *Manifest) Validate() error {
	switch {
	case m.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidManifest)
	case !namePattern.MatchString(m.Name):
		return fmt.Errorf("%w: invalid name %q", ErrInvalidManifest, m.Name)
	case m.Version == "":
		return fmt.Errorf("%w: version is required", ErrInvalidManifest)
	case !versionPattern.MatchString(m.Version):
		return fmt.Errorf("%w: invalid version %q", ErrInvalidManifest, m.Version)
	case filepath.Ext(m.Main) != ".lua":
		return fmt.Errorf("%w: main must be a .lua file, got %q", ErrInvalidManifest, m.Main)
	case !filepath.IsLocal(m.Main):
		return fmt.Errorf("%w: main must be inside the plugin directory", ErrInvalidManifest)
	}
	for _, dep := range m.Depend {
		if dep == m.Name {
			return fmt.Errorf("%w: %s depends on itself", ErrInvalidManifest, m.Name)
		}
	}
	return nil
}

// Dir returns the plugin directory.
func (m *Manifest) Dir() string {
	return m.dir
}

// MainPath returns the path of the entry script.
func (m *Manifest) MainPath() string {
	return filepath.Join(m.dir, m.Main)
}

// AllAuthors returns author followed by authors.
func (m *Manifest) AllAuthors() []string {
	var out []string
	if m.Author != "" {
		out = append(out, m.Author)
	}
	return append(out, m.Authors...)
}

// String returns "name v<version>".
func (m *Manifest) String() string {
	return m.Name + " v" + m.Version
}
