package httpapi

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const uiPrefix = "/ui/"

//go:embed static/*
var dashboardAssets embed.FS

func newDashboardAssets() http.Handler {
	sub, err := fs.Sub(dashboardAssets, "static")
	if err != nil {
		return http.NotFoundHandler()
	}
	return http.FileServer(http.FS(sub))
}

// mountDashboardUI serves the browser dashboard. The page shell is never
// cached: it decides between the sign-in form and the dashboard on load.
func mountDashboardUI(r chi.Router, assets http.Handler) {
	toUI := func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, uiPrefix, http.StatusTemporaryRedirect)
	}
	r.Get("/", toUI)
	r.Get("/ui", toUI)

	files := http.StripPrefix(uiPrefix, assets)
	r.Handle(uiPrefix+"*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == uiPrefix || r.URL.Path == uiPrefix+"index.html" {
			w.Header().Set("Cache-Control", "no-store")
		}
		files.ServeHTTP(w, r)
	}))
}
