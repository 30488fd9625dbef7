// Package render turns page-kind rule bodies into HTML. The gateway treats
// the renderer as pluggable; the default implementation evaluates the body
// as a Go html/template.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// PageRenderer renders a page-kind body into HTML bytes.
type PageRenderer interface {
	Render(templateBody string) ([]byte, error)
}

// HTMLRenderer renders bodies as html/template documents with a small set
// of helper functions.
type HTMLRenderer struct {
	funcs template.FuncMap
}

// NewHTMLRenderer creates the default page renderer.
func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{
		funcs: template.FuncMap{
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"now":   func() string { return time.Now().UTC().Format(time.RFC3339) },
		},
	}
}

// Render implements PageRenderer.
func (r *HTMLRenderer) Render(templateBody string) ([]byte, error) {
	tmpl, err := template.New("page").Funcs(r.funcs).Parse(templateBody)
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, nil); err != nil {
		return nil, fmt.Errorf("render page template: %w", err)
	}
	return buf.Bytes(), nil
}
