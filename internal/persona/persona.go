// Package persona loads prompt directives: markdown files with YAML
// frontmatter that shape the assistant's behavior. The primary session's
// system prompt is composed from every enabled directive; delegated sessions
// can borrow a single directive as their system prompt.
package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Directive is one loaded prompt fragment.
type Directive struct {
	// From frontmatter
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Model       string `yaml:"model,omitempty"`   // suggested model for delegation
	Primary     bool   `yaml:"primary,omitempty"` // folded into the primary prompt

	// From content
	Prompt string `yaml:"-"`

	Path string `yaml:"-"`
}

// LoadFile parses one directive file.
func LoadFile(path string) (*Directive, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading directive: %w", err)
	}
	d, err := Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	d.Path = path
	return d, nil
}

// Parse splits frontmatter from body and validates required fields.
func Parse(content string) (*Directive, error) {
	frontmatter, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, err
	}

	d := &Directive{}
	if err := yaml.Unmarshal([]byte(frontmatter), d); err != nil {
		return nil, fmt.Errorf("invalid frontmatter: %w", err)
	}
	if d.Name == "" {
		return nil, fmt.Errorf("missing required field: name")
	}
	if err := validateName(d.Name); err != nil {
		return nil, err
	}

	d.Prompt = strings.TrimSpace(body)
	if d.Prompt == "" {
		return nil, fmt.Errorf("directive %s has no prompt body", d.Name)
	}
	return d, nil
}

func splitFrontmatter(content string) (frontmatter, body string, err error) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", "", fmt.Errorf("missing frontmatter delimiter")
	}

	var fmLines []string
	bodyStart := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			bodyStart = i + 1
			break
		}
		fmLines = append(fmLines, lines[i])
	}
	if bodyStart < 0 {
		return "", "", fmt.Errorf("unclosed frontmatter")
	}

	frontmatter = strings.Join(fmLines, "\n")
	if bodyStart < len(lines) {
		body = strings.Join(lines[bodyStart:], "\n")
	}
	return frontmatter, body, nil
}

func validateName(name string) error {
	if len(name) == 0 || len(name) > 64 {
		return fmt.Errorf("name must be 1-64 characters")
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return fmt.Errorf("name cannot start or end with hyphen")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return fmt.Errorf("name can only contain lowercase letters, numbers, and hyphens")
		}
	}
	return nil
}

// LoadDir loads every *.md directive in a directory, sorted by name.
// Invalid files are skipped; a missing directory yields no directives.
func LoadDir(dir string) ([]Directive, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing directives: %w", err)
	}

	var directives []Directive
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		d, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		directives = append(directives, *d)
	}
	sort.Slice(directives, func(i, j int) bool { return directives[i].Name < directives[j].Name })
	return directives, nil
}

// Compose joins the base prompt with every primary directive's body.
func Compose(base string, directives []Directive) string {
	parts := []string{strings.TrimSpace(base)}
	for _, d := range directives {
		if d.Primary {
			parts = append(parts, d.Prompt)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Find returns the directive with the given name.
func Find(directives []Directive, name string) (*Directive, bool) {
	for i := range directives {
		if directives[i].Name == name {
			return &directives[i], true
		}
	}
	return nil, false
}
