package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/mediaq/internal/api/shared"
	"github.com/phrazzld/mediaq/internal/queue"
)

// getPathUUID parses the named chi path parameter as a UUID.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	raw := chi.URLParam(r, paramName)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("path parameter %s is required", paramName)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("path parameter %s has invalid format: %w", paramName, err)
	}
	return id, nil
}

// adminRunner builds the runner identity stamped on jobs an administrator
// processes through the API.
func adminRunner(r *http.Request) (queue.Runner, bool) {
	p, ok := shared.PrincipalFrom(r.Context())
	if !ok || p.UserID == uuid.Nil {
		return queue.Runner{}, false
	}
	return queue.Runner{Name: "admin:" + p.UserID.String(), ProcessedBy: p.UserID.String()}, true
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
