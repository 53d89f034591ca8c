// Package renderer formats portfolio snapshots and histories as markdown.
//
// Reports are assembled from text/template files embedded in the binary: a
// main template per report and named partials for its sections.
package renderer

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"
)

//go:embed templates/*.md
var templates embed.FS

// RenderSnapshot renders a snapshot report.
func RenderSnapshot(s *Snapshot) string {
	partials := map[string]string{
		"snapshot_assets":   "snapshot_assets.md",
		"snapshot_accounts": "snapshot_accounts.md",
	}
	return renderTemplate("snapshot", "snapshot.md", partials, s)
}

// RenderHistory renders a history report.
func RenderHistory(h *History) string {
	partials := map[string]string{
		"history_summary": "history_summary.md",
	}
	return renderTemplate("history", "history.md", partials, h)
}

// renderTemplate renders a main template that depends on several partials.
func renderTemplate(templateName, mainFile string, partials map[string]string, data any) string {
	mainContent, err := fs.ReadFile(templates, "templates/"+mainFile)
	if err != nil {
		return fmt.Sprintf("error reading main template %q: %v", mainFile, err)
	}

	tmpl, err := template.New(templateName).Parse(string(mainContent))
	if err != nil {
		return fmt.Sprintf("error parsing main template %q: %v", mainFile, err)
	}

	for name, file := range partials {
		content, err := fs.ReadFile(templates, "templates/"+file)
		if err != nil {
			return fmt.Sprintf("error reading partial template %q: %v", file, err)
		}
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Sprintf("error parsing partial template %q for %q: %v", file, name, err)
		}
	}

	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, templateName, data); err != nil {
		return fmt.Sprintf("error executing template %q: %v", templateName, err)
	}
	return b.String()
}
