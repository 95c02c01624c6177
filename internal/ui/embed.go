// Package ui holds the embedded dashboard templates served by the API
// server.
package ui

import (
	"embed"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/promptsense/promptsense/internal/models"
)

//go:embed index.html.tmpl
var templateFS embed.FS

var indexTmpl = template.Must(template.New("index.html.tmpl").Funcs(template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04")
	},
	"tasks": func(ts []models.Task) string {
		parts := make([]string, len(ts))
		for i, t := range ts {
			parts[i] = string(t)
		}
		return strings.Join(parts, ", ")
	},
	"commas": func(ss []string) string {
		return strings.Join(ss, ", ")
	},
}).ParseFS(templateFS, "index.html.tmpl"))

// IndexData feeds the dashboard index template.
type IndexData struct {
	Version      string
	Datasets     []*models.Dataset
	Runs         []*models.Run
	DatasetNames map[string]string // dataset ID -> name, for run rows
}

// RenderIndex writes the dashboard index page.
func RenderIndex(w io.Writer, data IndexData) error {
	return indexTmpl.Execute(w, data)
}
