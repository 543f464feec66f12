package endpoint

import (
	"embed"
	"encoding/json"
	"net/http"
)

//go:embed static
var staticFS embed.FS

// httpHandler serves the web variant of the GUI plus a health probe used by
// the supervisor and by tests.
func (e *Endpoint) httpHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", e.handleHealth)
	mux.Handle("/static/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		page, err := staticFS.ReadFile("static/index.html")
		if err != nil {
			http.Error(w, "gui page unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	})
	return mux
}

func (e *Endpoint) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"data": map[string]any{"status": "ok", "connections": e.ActiveConnections()},
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
