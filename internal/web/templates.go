package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"time"

	"manualbase/internal/logs"
	"manualbase/internal/middleware"
)

//go:embed templates/*.tmpl
var tplFS embed.FS

// набор готовых шаблонов по страницам (ключ = имя файла страницы, напр. "user.tmpl")
type pageTemplates map[string]*template.Template

var funcs = template.FuncMap{
	"ts": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02 15:04")
	},
}

func parseTemplates() pageTemplates {
	all, err := fs.Glob(tplFS, "templates/*.tmpl")
	if err != nil {
		logs.Logger.Fatalf("web: glob templates failed: %v", err)
	}
	if len(all) == 0 {
		logs.Logger.Fatalf("web: no templates found in embed FS")
	}

	// по одному набору на страницу: layout + страница
	out := make(pageTemplates)
	for _, f := range all {
		if path.Base(f) == "layout.tmpl" {
			continue
		}
		t := template.New("layout").Funcs(funcs)
		if _, err := t.ParseFS(tplFS, "templates/layout.tmpl"); err != nil {
			logs.Logger.Fatalf("web: parse layout.tmpl: %v", err)
		}
		if _, err := t.ParseFS(tplFS, f); err != nil {
			logs.Logger.Fatalf("web: parse %s: %v", f, err)
		}
		out[path.Base(f)] = t
	}
	return out
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data map[string]any) {
	t, ok := h.t[page]
	if !ok {
		http.Error(w, "template not found: "+page, http.StatusInternalServerError)
		return
	}
	if _, ok := data["Flashes"]; !ok {
		data["Flashes"] = map[string][]string{}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		middleware.Log(r).WithError(err).WithField("page", page).Error("render")
	}
}
