package auth

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/finledger/collab/internal/domain"
)

// Authorizer answers whether a user may act inside a workspace. Workspace
// membership itself is managed elsewhere; this core only consumes the check.
type Authorizer interface {
	CheckWorkspaceAccess(ctx context.Context, workspaceID, userID uuid.UUID) error
}

// ContextAuthorizer trusts the proxy-verified workspace set carried in the
// request context (see Middleware).
type ContextAuthorizer struct{}

// CheckWorkspaceAccess returns a domain.ForbiddenError unless the workspace
// is in the context's authenticated workspace set.
func (ContextAuthorizer) CheckWorkspaceAccess(ctx context.Context, workspaceID, userID uuid.UUID) error {
	workspaces, ok := WorkspacesFromContext(ctx)
	if ok {
		if _, member := workspaces[workspaceID]; member {
			return nil
		}
	}
	return &domain.ForbiddenError{WorkspaceID: workspaceID.String(), UserID: userID.String()}
}

// StaticAuthorizer is a process-local Authorizer over an explicit membership
// table. It backs tests and single-tenant deployments.
type StaticAuthorizer struct {
	mu      sync.RWMutex
	members map[uuid.UUID]map[uuid.UUID]struct{}
}

// NewStaticAuthorizer creates an authorizer with no memberships.
func NewStaticAuthorizer() *StaticAuthorizer {
	return &StaticAuthorizer{members: make(map[uuid.UUID]map[uuid.UUID]struct{})}
}

// Grant adds a user to a workspace.
func (a *StaticAuthorizer) Grant(workspaceID, userID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.members[workspaceID] == nil {
		a.members[workspaceID] = make(map[uuid.UUID]struct{})
	}
	a.members[workspaceID][userID] = struct{}{}
}

// CheckWorkspaceAccess returns a domain.ForbiddenError unless the user is a
// member of the workspace.
func (a *StaticAuthorizer) CheckWorkspaceAccess(ctx context.Context, workspaceID, userID uuid.UUID) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if _, ok := a.members[workspaceID][userID]; !ok {
		return &domain.ForbiddenError{WorkspaceID: workspaceID.String(), UserID: userID.String()}
	}
	return nil
}
