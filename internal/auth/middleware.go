package auth

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Identity headers set by the authenticating reverse proxy in front of this
// service. Authentication itself happens upstream; this middleware only
// carries the already-verified identity into the request context.
const (
	UserIDHeader     = "X-User-ID"
	WorkspacesHeader = "X-Workspace-IDs"
)

// Middleware copies the proxy-verified user identity and workspace set from
// request headers into the context. Requests without a valid user id pass
// through unauthenticated; handlers requiring identity reject them.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(strings.TrimSpace(r.Header.Get(UserIDHeader)))
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		var workspaces []uuid.UUID
		for _, raw := range strings.Split(r.Header.Get(WorkspacesHeader), ",") {
			id, err := uuid.Parse(strings.TrimSpace(raw))
			if err != nil {
				continue
			}
			workspaces = append(workspaces, id)
		}

		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), userID, workspaces)))
	})
}
