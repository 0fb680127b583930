package app

import (
	"github.com/gcexplain/gcexplain/gce"

	"html/template"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
)

func figuresRoot() string {
	return scriptsPath(gce.FiguresDir)
}

// Directory of figures for an implementation, or "" if the name is unsafe.
func figureDir(implementation string) string {
	if implementation == "" || implementation == "." || strings.Contains(implementation, "..") || strings.ContainsAny(implementation, "/\\") {
		return ""
	}
	return filepath.Join(figuresRoot(), implementation)
}

// Extension selected with ?ext=, e.g. "svg" for experiments whose figures
// are written in another file type. Defaults to .png.
func figureExt(r *http.Request) string {
	ext := r.URL.Query().Get("ext")
	if ext == "" {
		return gce.FigureExt
	} else if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}

var galleryTemplate = template.Must(template.New("gallery").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Implementation}}</title></head>
<body>
<h1>{{.Implementation}}</h1>
{{if not .Figures}}<p>No figures.</p>{{end}}
{{range .Figures}}<figure>
<img src="/figure-files/{{$.Implementation}}/{{.Name}}" alt="{{.Name}}">
<figcaption>{{.Name}}{{if .Width}} ({{.Width}}x{{.Height}}){{end}}</figcaption>
</figure>
{{end}}</body>
</html>
`))

type galleryPage struct {
	Implementation string
	Figures []gce.Figure
}

func init() {
		Router.HandleFunc("/figures/{impl}", func(w http.ResponseWriter, r *http.Request) {
		dir := figureDir(mux.Vars(r)["impl"])
		if dir == "" {
			http.Error(w, "bad implementation name", 400)
			return
		}
		figures, err := gce.ListFigures(dir, figureExt(r))
		if os.IsNotExist(err) {
			http.Error(w, "no such figure directory", 404)
			return
		} else if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		gce.JsonResponse(w, figures)
	}).Methods("GET")

	Router.HandleFunc("/gallery/{impl}", func(w http.ResponseWriter, r *http.Request) {
		impl := mux.Vars(r)["impl"]
		dir := figureDir(impl)
		if dir == "" {
			http.Error(w, "bad implementation name", 400)
			return
		}
		figures, err := gce.ListFigures(dir, figureExt(r))
		if os.IsNotExist(err) {
			http.Error(w, "no such figure directory", 404)
			return
		} else if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		if err := galleryTemplate.Execute(w, galleryPage{impl, figures}); err != nil {
			log.Printf("[gallery] render %s: %v", impl, err)
		}
	}).Methods("GET")

	Router.PathPrefix("/figure-files/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// figures are rewritten by every generate_figures call
		w.Header().Set("Cache-Control", "no-cache")
		http.StripPrefix("/figure-files/", http.FileServer(http.Dir(figuresRoot()))).ServeHTTP(w, r)
	})
}
