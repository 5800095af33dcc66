package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/a7mdelbanna/classboom/internal/logging"
	"github.com/a7mdelbanna/classboom/internal/web/templates"
)

// handleImportSummary renders the session summary as an HTML fragment.
func (s *Server) handleImportSummary(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Snapshot(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ImportSummary(snap).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render import summary", "error", err)
	}
}
