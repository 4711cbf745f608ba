package server

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// resolveAsset maps a request path onto a file under root. It returns false
// if the cleaned path would escape root.
func resolveAsset(root, urlPath string) (string, bool) {
	cleaned := path.Clean("/" + urlPath)
	full := filepath.Join(root, filepath.FromSlash(cleaned))

	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

// serveUI serves a static asset, falling back to index.html so client-side
// routes resolve.
func (s *Server) serveUI(w http.ResponseWriter, r *http.Request) {
	full, ok := resolveAsset(s.opts.UIDir, r.URL.Path)
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	if info, err := os.Stat(full); err == nil && !info.IsDir() {
		serveFile(w, r, full)
		return
	}
	serveFile(w, r, filepath.Join(s.opts.UIDir, "index.html"))
}

func serveFile(w http.ResponseWriter, r *http.Request, name string) {
	f, err := os.Open(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
