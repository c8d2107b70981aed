package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validDirective = `---
name: travel-planner
description: Plans multi-city trips
model: claude-opus-4.5
primary: true
---

Plan trips with explicit budgets and dates.
`

func TestParse(t *testing.T) {
	d, err := Parse(validDirective)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if d.Name != "travel-planner" {
		t.Errorf("Name = %q", d.Name)
	}
	if d.Model != "claude-opus-4.5" {
		t.Errorf("Model = %q", d.Model)
	}
	if !d.Primary {
		t.Error("Primary = false, want true")
	}
	if d.Prompt != "Plan trips with explicit budgets and dates." {
		t.Errorf("Prompt = %q", d.Prompt)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no frontmatter":  "just a body",
		"unclosed":        "---\nname: x",
		"missing name":    "---\ndescription: d\n---\nbody",
		"bad name":        "---\nname: Has Spaces\n---\nbody",
		"hyphen edges":    "---\nname: -bad-\n---\nbody",
		"empty body":      "---\nname: fine\n---\n\n",
	}
	for label, content := range cases {
		if _, err := Parse(content); err == nil {
			t.Errorf("Parse(%s) succeeded, want error", label)
		}
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("b.md", "---\nname: beta\ndescription: second\n---\nbeta prompt")
	write("a.md", "---\nname: alpha\ndescription: first\nprimary: true\n---\nalpha prompt")
	write("broken.md", "not a directive")
	write("ignored.txt", "not markdown")

	directives, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(directives) != 2 {
		t.Fatalf("LoadDir() = %d directives, want 2", len(directives))
	}
	if directives[0].Name != "alpha" || directives[1].Name != "beta" {
		t.Errorf("order = [%s, %s], want sorted by name", directives[0].Name, directives[1].Name)
	}
}

func TestLoadDirMissing(t *testing.T) {
	directives, err := LoadDir(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("LoadDir() on missing dir error = %v", err)
	}
	if directives != nil {
		t.Errorf("LoadDir() = %v, want nil", directives)
	}
}

func TestCompose(t *testing.T) {
	directives := []Directive{
		{Name: "alpha", Prompt: "alpha prompt", Primary: true},
		{Name: "beta", Prompt: "beta prompt"},
		{Name: "gamma", Prompt: "gamma prompt", Primary: true},
	}
	got := Compose("You are an assistant.", directives)
	if !strings.HasPrefix(got, "You are an assistant.") {
		t.Errorf("Compose() lost the base prompt: %q", got)
	}
	if !strings.Contains(got, "alpha prompt") || !strings.Contains(got, "gamma prompt") {
		t.Error("Compose() dropped a primary directive")
	}
	if strings.Contains(got, "beta prompt") {
		t.Error("Compose() included a non-primary directive")
	}
}

func TestFind(t *testing.T) {
	directives := []Directive{{Name: "alpha"}, {Name: "beta"}}
	if d, ok := Find(directives, "beta"); !ok || d.Name != "beta" {
		t.Errorf("Find(beta) = (%v, %v)", d, ok)
	}
	if _, ok := Find(directives, "missing"); ok {
		t.Error("Find(missing) = true, want false")
	}
}
