package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/a7mdelbanna/classboom/internal/core"
)

// InstitutionHeader names the tenant an import commits into.
const InstitutionHeader = "X-Institution-ID"

// WithRequestMetadata records who started an import so the session can report it.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithRequestMetadata(ctx, core.RequestMetadata{
		IPAddress: r.RemoteAddr, // rewritten by TrustedRealIP
		UserAgent: r.UserAgent(),
		RequestID: chimw.GetReqID(r.Context()),
	})
}

// institutionID reads the tenant from the X-Institution-ID header.
func institutionID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.Header.Get(InstitutionHeader))
	if raw == "" {
		return uuid.Nil, errMissingInstitution
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: %q", errMissingInstitution, raw)
	}
	return id, nil
}
