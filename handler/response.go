package handler

import (
	"encoding/json"
	"net/http"
)

// respond writes v as JSON and logs encoding or write failures. The status
// line is already sent by then, so the client only sees a truncated body.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := writeJSON(w, status, v); err != nil {
		h.log.ErrorContext(r.Context(), "writing response", "path", r.URL.Path, "status", status, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// writeText writes a plain-text body with no trailing newline.
func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	w.Write([]byte(msg))
}

func notFound(w http.ResponseWriter) {
	writeText(w, http.StatusNotFound, "Not Found")
}
