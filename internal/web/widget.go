package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFiles embed.FS

// registerWidgetRoutes serves the embedded live-chat widget at
// /widget. The page connects back over /v1/widget/ws for transcript
// updates.
func registerWidgetRoutes(mux *http.ServeMux) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	fileServer := http.FileServer(http.FS(subFS))

	mux.HandleFunc("GET /widget", func(w http.ResponseWriter, r *http.Request) {
		r.URL.Path = "/widget.html"
		fileServer.ServeHTTP(w, r)
	})
	mux.Handle("GET /widget/", http.StripPrefix("/widget", fileServer))
}
