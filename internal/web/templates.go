package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/justestif/go-music-agent/internal/daemon"
)

//go:embed templates
var embedded embed.FS

// templateFS is rooted at the templates directory.
var templateFS = mustSub(embedded, "templates")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// Templates renders the admin pages.
type Templates struct {
	pages map[string]*template.Template
	funcs template.FuncMap
}

// NewTemplates parses every page in templatesFS together with the layouts.
func NewTemplates(templatesFS fs.FS) (*Templates, error) {
	t := &Templates{
		pages: make(map[string]*template.Template),
		funcs: defaultFuncs(),
	}
	if err := t.load(templatesFS); err != nil {
		return nil, err
	}
	return t, nil
}

// Render executes the base layout with page as its content.
func (t *Templates) Render(w io.Writer, page string, data any) error {
	tmpl, ok := t.pages[page]
	if !ok {
		return fmt.Errorf("template %q not found", page)
	}
	return tmpl.ExecuteTemplate(w, "base", data)
}

func (t *Templates) load(templatesFS fs.FS) error {
	layouts, err := fs.Glob(templatesFS, "layouts/*.html")
	if err != nil {
		return fmt.Errorf("finding layouts: %w", err)
	}
	pages, err := fs.Glob(templatesFS, "pages/*.html")
	if err != nil {
		return fmt.Errorf("finding pages: %w", err)
	}

	for _, page := range pages {
		name := strings.TrimSuffix(path.Base(page), ".html")
		files := append([]string{page}, layouts...)
		tmpl, err := template.New(name).Funcs(t.funcs).ParseFS(templatesFS, files...)
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}
		t.pages[name] = tmpl
	}
	return nil
}

func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		// formatTime formats a time as "Jan 2 15:04:05".
		"formatTime": func(t *time.Time) string {
			if t == nil || t.IsZero() {
				return "never"
			}
			return t.Local().Format("Jan 2 15:04:05")
		},
		"stateClass": func(s daemon.State) string {
			if s == daemon.StateRunning {
				return "ok"
			}
			return "warn"
		},
	}
}

// PageData contains common data passed to all page templates.
type PageData struct {
	Title       string
	CurrentPath string
}

// StatusPageData is the data for the status page.
type StatusPageData struct {
	PageData
	Status daemon.Status
}
