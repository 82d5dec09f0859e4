// Package site serves the embedded landing page.
package site

import (
	"context"
	"net/http"
)

// Register attaches the landing page routes to mux. Paths that no other
// route claims and that are not site assets answer 404.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.Handle("/", NewRootHandler())
}

// RootHandler serves the embedded site files.
type RootHandler struct {
	files http.Handler
}

// NewRootHandler creates a new root handler.
func NewRootHandler() *RootHandler {
	return &RootHandler{files: http.FileServer(FS())}
}

func (h *RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}
	switch r.URL.Path {
	case "/", "/style.css":
		h.files.ServeHTTP(w, r)
	default:
		http.NotFound(w, r)
	}
}
