package acl

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/schaermu/gerritsync/internal/config"
)

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestTemplateExists(t *testing.T) {
	dir := t.TempDir()

	p := config.Project{Name: "alpha"}
	if TemplateExists(dir, p) {
		t.Error("alpha.config does not exist yet")
	}

	writeTemplate(t, dir, "alpha.config", "[access]\n")
	if !TemplateExists(dir, p) {
		t.Error("alpha.config should exist")
	}

	if TemplateExists("", p) {
		t.Error("empty acl dir never has templates")
	}
}

func TestRenderSubstitutesProjectAttributes(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "alpha.config",
		"[project]\n\tdescription = {{.description}}\n[access \"refs/heads/*\"]\n\tread = group {{.readers}}\n")

	p := config.Project{
		Name:          "alpha",
		Description:   "The alpha project",
		ACLParameters: map[string]string{"readers": "alpha-readers"},
	}

	got, err := Render(dir, p)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(got, "description = The alpha project") {
		t.Errorf("description not rendered:\n%s", got)
	}
	if !strings.Contains(got, "read = group alpha-readers") {
		t.Errorf("parameter not rendered:\n%s", got)
	}
}

func TestRenderParametersOverrideAttributes(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "alpha.config", "name = {{.project}}\n")

	p := config.Project{
		Name:          "alpha",
		ACLParameters: map[string]string{"project": "other-project"},
	}

	got, err := Render(dir, p)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "name = other-project\n" {
		t.Errorf("got %q, want parameter to win", got)
	}
}

func TestRenderMissingTemplate(t *testing.T) {
	p := config.Project{Name: "alpha"}
	if _, err := Render(t.TempDir(), p); err == nil {
		t.Error("expected error for missing template")
	}
}

func TestGroupsScan(t *testing.T) {
	content := strings.Join([]string{
		"[access \"refs/heads/*\"]",
		"\tread = group alpha-readers",
		"\tpush = group alpha-core",
		"\tlabel-Code-Review = -2..+2 group alpha-core",
		"\tread = deny anonymous",
		"[access \"refs/tags/*\"]",
		"\tpushTag = group alpha-release",
		"",
	}, "\n")

	got := Groups(content)
	want := []string{"alpha-readers", "alpha-core", "alpha-release"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("groups mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupsEmptyContent(t *testing.T) {
	if got := Groups("[access]\n\tread = anonymous\n"); got != nil {
		t.Errorf("expected no groups, got %v", got)
	}
}
