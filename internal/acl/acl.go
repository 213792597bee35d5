// Package acl renders access-control policy templates and scans rendered
// policies for group references.
package acl

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/schaermu/gerritsync/internal/config"
)

// TemplateExists reports whether a policy template is present for the
// project in the given policy directory.
func TemplateExists(aclDir string, p config.Project) bool {
	if aclDir == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(aclDir, p.ACLFile()))
	return err == nil && info.Mode().IsRegular()
}

// Render evaluates the project's policy template against its attributes and
// declared acl-parameters, returning the rendered policy text. The template
// context exposes the project name as {{.project}}, the description as
// {{.description}}, the upstream as {{.upstream}}, plus every key from
// acl-parameters (parameters win on collision).
func Render(aclDir string, p config.Project) (string, error) {
	path := filepath.Join(aclDir, p.ACLFile())
	tmpl, err := template.ParseFiles(path)
	if err != nil {
		return "", fmt.Errorf("failed to parse policy template %s: %w", path, err)
	}

	data := map[string]string{
		"project":     p.Name,
		"description": p.Description,
		"upstream":    p.Upstream,
	}
	for k, v := range p.ACLParameters {
		data[k] = v
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render policy template %s: %w", path, err)
	}
	return buf.String(), nil
}

var groupRe = regexp.MustCompile(`\sgroup\s+(.*)$`)

// Groups returns every group name referenced by the policy content, unique,
// in order of first appearance.
func Groups(content string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(content, "\n") {
		m := groupRe.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
