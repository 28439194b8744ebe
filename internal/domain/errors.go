package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports caller input that fails a boundary check: an unknown
// entity type, a history limit out of range, or a chosen version outside the
// conflict's current/incoming pair.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError with the given message.
func NewValidationError(message string) error {
	return &ValidationError{Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError reports a lookup for a record that does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NewNotFoundError creates a NotFoundError for the given resource and id.
func NewNotFoundError(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// ForbiddenError reports a workspace access denial.
type ForbiddenError struct {
	WorkspaceID string
	UserID      string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("user %s does not have access to workspace %s", e.UserID, e.WorkspaceID)
}

// IsForbidden reports whether err is (or wraps) a ForbiddenError.
func IsForbidden(err error) bool {
	var fe *ForbiddenError
	return errors.As(err, &fe)
}

// VersionConflictError signals that an append would have duplicated a version
// number. Proposal serialization is supposed to make this unreachable; seeing
// it surface means the compare-and-set guarantee was violated.
type VersionConflictError struct {
	EntityType    EntityType
	EntityID      string
	VersionNumber int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("duplicate version %d for %s %s", e.VersionNumber, e.EntityType, e.EntityID)
}

// IsVersionConflict reports whether err is (or wraps) a VersionConflictError.
func IsVersionConflict(err error) bool {
	var vce *VersionConflictError
	return errors.As(err, &vce)
}
