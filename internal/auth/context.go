package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	userIDKey     contextKey = "userID"
	workspacesKey contextKey = "workspaces"
)

// ContextWithUser returns a new context carrying the authenticated user and
// the set of workspaces that user belongs to.
func ContextWithUser(ctx context.Context, userID uuid.UUID, workspaces []uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	set := make(map[uuid.UUID]struct{}, len(workspaces))
	for _, id := range workspaces {
		set[id] = struct{}{}
	}
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, workspacesKey, set)
}

// UserIDFromContext retrieves the authenticated user id from the context, if any.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// WorkspacesFromContext retrieves the authenticated user's workspace set from
// the context. The returned map must not be mutated.
func WorkspacesFromContext(ctx context.Context) (map[uuid.UUID]struct{}, bool) {
	if ctx == nil {
		return nil, false
	}
	set, ok := ctx.Value(workspacesKey).(map[uuid.UUID]struct{})
	if !ok {
		return nil, false
	}
	return set, true
}
