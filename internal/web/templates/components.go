// Package templates renders the HTML fragments of the import UI.
//
// Components are written in components.templ; run `templ generate` after
// editing it to refresh components_templ.go.
package templates

import (
	"sort"
	"strings"

	"github.com/a-h/templ"

	"github.com/a7mdelbanna/classboom/internal/core"
)

func resultStatus(r *core.ImportResult) string {
	if r.Success {
		return "complete"
	}
	return "partial"
}

func rowState(e core.ErrorPreview) string {
	if e.Excluded {
		return "excluded"
	}
	return "warning"
}

// hasReport reports whether the session has anything for the error report.
func hasReport(snap core.SessionSnapshot) bool {
	if snap.ID == "" {
		return false
	}
	return len(snap.Errors) > 0 || (snap.Result != nil && len(snap.Result.Errors) > 0)
}

func reportURL(sessionID string) templ.SafeURL {
	return templ.URL("/api/import/sessions/" + sessionID + "/errors.csv")
}

// joinValues renders raw cell values sorted by column for a compact table cell.
func joinValues(values map[string]string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + values[k]
	}
	return strings.Join(parts, "; ")
}
