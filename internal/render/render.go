// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package render provides HTML template rendering for the dashboard pages
// and the public player page. Templates are embedded in the binary.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"strings"
	"time"

	"proxyplayer/internal/models"
	"proxyplayer/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page holds all data passed to templates.
type Page struct {
	Title     string              // Page title, shown before the site title
	Section   string              // Active nav section (e.g., "dashboard", "users")
	Mount     string              // Path prefix the app is served under
	Site      models.SiteSettings // Effective site title and favicon
	Session   *session.Data       // Current user session (nil if anonymous)
	CSRFToken string              // CSRF token for forms
	Flash     *session.Flash      // One-time notification
	Data      map[string]any      // Page-specific data
}

// standaloneTemplates render as full HTML documents without the base layout.
var standaloneTemplates = map[string]bool{
	"player": true,
}

// Renderer holds the parsed page templates.
type Renderer struct {
	templates map[string]*template.Template
}

// funcs is the template function map shared by every page.
var funcs = template.FuncMap{
	"activeClass": func(current, target string) string {
		if current == target {
			return "text-white bg-primary/10"
		}
		return ""
	},
	// deref safely dereferences a string pointer.
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
	"add": func(a, b int) int { return a + b },
	"sub": func(a, b int) int { return a - b },
	"date": func(t time.Time) string {
		return t.Format("Jan 2, 2006 15:04")
	},
}

// New parses all templates from the embedded filesystem. Each page
// template is paired with the base layout unless it is standalone.
func New() (*Renderer, error) {
	entries, err := fs.ReadDir(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("read embedded templates: %w", err)
	}

	r := &Renderer{templates: make(map[string]*template.Template)}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == "base.html" || !strings.HasSuffix(name, ".html") {
			continue
		}
		tmplName := strings.TrimSuffix(name, ".html")

		var tmpl *template.Template
		if standaloneTemplates[tmplName] {
			tmpl, err = template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/"+name)
		} else {
			tmpl, err = template.New("base.html").Funcs(funcs).ParseFS(
				templateFS, "templates/base.html", "templates/"+name,
			)
		}
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.templates[tmplName] = tmpl
	}
	return r, nil
}

// Has reports whether a page template called name exists.
func (rn *Renderer) Has(name string) bool {
	_, ok := rn.templates[name]
	return ok
}

// Render executes the named page and returns the HTML. The output is
// buffered so a template error never leaves a half-written response.
func (rn *Renderer) Render(name string, data *Page) ([]byte, error) {
	tmpl, ok := rn.templates[name]
	if !ok {
		return nil, fmt.Errorf("template %q not found", name)
	}
	if data == nil {
		data = &Page{}
	}
	if data.Site.SiteTitle == "" {
		data.Site = models.DefaultSiteSettings()
	}

	execName := "base.html"
	if standaloneTemplates[name] {
		execName = name + ".html"
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, execName, data); err != nil {
		return nil, fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// URL joins the mount prefix and an absolute app path.
func (p *Page) URL(path string) string {
	return p.Mount + path
}

// Pagination describes one page of a list for the pager controls.
type Pagination struct {
	Page    int // 1-based, clamped to [1, Pages]
	Pages   int
	PerPage int
	PrevURL string
	NextURL string
}

// NewPagination clamps page to the available range and builds the prev and
// next links with link.
func NewPagination(total, page, perPage int, link func(page int) string) Pagination {
	if perPage <= 0 {
		perPage = 1
	}
	pages := (total + perPage - 1) / perPage
	if page > pages {
		page = pages
	}
	if page < 1 {
		page = 1
	}
	p := Pagination{Page: page, Pages: pages, PerPage: perPage}
	if page > 1 {
		p.PrevURL = link(page - 1)
	}
	if page < pages {
		p.NextURL = link(page + 1)
	}
	return p
}

// Offset returns the number of rows before the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}
