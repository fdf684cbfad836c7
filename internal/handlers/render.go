package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/statusify/statusify/internal/authz"
	"github.com/statusify/statusify/internal/models"
	"github.com/statusify/statusify/internal/session"
	"github.com/statusify/statusify/internal/status"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"index", "sign_in", "incident_form", "incident_show"}

// Page is the data handed to every HTML template.
type Page struct {
	Title     string
	Flash     session.Flash
	Identity  authz.Identity
	SignedIn  bool
	Summary   status.Summary
	Incidents []models.Incident
	Incident  models.Incident
	Form      IncidentForm
}

// IncidentForm drives the shared new/edit form.
type IncidentForm struct {
	Action  string
	Method  string
	Editing bool
	Errors  []string
}

type Renderer struct {
	pages map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		"timestamp": func(t time.Time) string { return t.UTC().Format("Jan 2, 2006 15:04 UTC") },
		"latest": func(i models.Incident) models.Event {
			evt, _ := i.LatestEvent()
			return evt
		},
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tpl, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = tpl
	}
	return &Renderer{pages: pages}, nil
}

// Render writes the named page. The pending flash is consumed and the
// signed-in identity is filled in from the request.
func (rr *Renderer) Render(w http.ResponseWriter, r *http.Request, code int, name string, page Page) {
	tpl, ok := rr.pages[name]
	if !ok {
		http.Error(w, "unknown page "+name, http.StatusInternalServerError)
		return
	}

	flash := session.PopFlash(w, r)
	if page.Flash.Empty() {
		page.Flash = flash
	}
	page.Identity, page.SignedIn = authz.IdentityFromRequest(r)

	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "layout", page); err != nil {
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	buf.WriteTo(w)
}
