// Package render executes the embedded HTML templates.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/pysugar/microblog/internal/db/models"
	"github.com/pysugar/microblog/internal/session"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

const layoutFile = "templates/base.html"

// Page is what every template receives. Content carries the page-specific
// values.
type Page struct {
	Title         string
	User          *models.User
	Flashes       []string
	SearchEnabled bool
	GoogleEnabled bool
	Content       interface{}
}

type Renderer struct {
	pages         map[string]*template.Template
	searchEnabled bool
	googleEnabled bool
	log           *zap.SugaredLogger
}

var funcs = template.FuncMap{
	"ago": func(t time.Time) string {
		d := time.Since(t)
		switch {
		case d < time.Minute:
			return "just now"
		case d < time.Hour:
			return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
		case d < 24*time.Hour:
			return fmt.Sprintf("%d hours ago", int(d.Hours()))
		default:
			return t.Format("Jan 2, 2006")
		}
	},
	"datetime": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
}

func New(searchEnabled, googleEnabled bool, log *zap.SugaredLogger) (*Renderer, error) {
	entries, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	r := &Renderer{
		pages:         make(map[string]*template.Template),
		searchEnabled: searchEnabled,
		googleEnabled: googleEnabled,
		log:           log,
	}
	for _, file := range entries {
		if file == layoutFile {
			continue
		}
		name := strings.TrimSuffix(path.Base(file), ".html")
		tmpl, err := template.New("base.html").Funcs(funcs).ParseFS(templateFS, layoutFile, file)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.pages[name] = tmpl
	}
	return r, nil
}

// HTML renders page with the common layout. Rendering happens into a buffer
// first so a template error can still produce a clean 500.
func (r *Renderer) HTML(w http.ResponseWriter, req *http.Request, status int, page, title string, content interface{}) {
	tmpl, ok := r.pages[page]
	if !ok {
		r.log.Errorw("unknown template", "page", page)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	data := Page{
		Title:         title,
		User:          session.CurrentUser(req.Context()),
		Flashes:       session.PopFlashes(w, req),
		SearchEnabled: r.searchEnabled,
		GoogleEnabled: r.googleEnabled,
		Content:       content,
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		r.log.Errorw("failed to render template", "page", page, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// Error renders the shared error page.
func (r *Renderer) Error(w http.ResponseWriter, req *http.Request, status int) {
	r.HTML(w, req, status, "error", http.StatusText(status), map[string]interface{}{
		"Status":  status,
		"Message": http.StatusText(status),
	})
}
