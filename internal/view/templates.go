// Package view holds the HTML templates and the helpers they use.
package view

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses every embedded page with the shared FuncMap. Each page
// defines its own name (e.g. "index.html") and pulls in "header" and "footer".
func Templates() (*template.Template, error) {
	return template.New("").Funcs(FuncMap()).ParseFS(templateFS, "templates/*.html")
}
