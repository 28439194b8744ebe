package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Channel names one publish/subscribe stream on the change bus: one per
// entity kind plus the conflict-detected stream.
type Channel string

const (
	ChannelAccountUpdated     Channel = "accountUpdated"
	ChannelCategoryUpdated    Channel = "categoryUpdated"
	ChannelPayeeUpdated       Channel = "payeeUpdated"
	ChannelTransactionUpdated Channel = "transactionUpdated"
	ChannelBudgetUpdated      Channel = "budgetUpdated"
	ChannelConflictDetected   Channel = "entityConflictDetected"
)

// Channels lists every bus channel in a stable order.
func Channels() []Channel {
	return []Channel{
		ChannelAccountUpdated,
		ChannelCategoryUpdated,
		ChannelPayeeUpdated,
		ChannelTransactionUpdated,
		ChannelBudgetUpdated,
		ChannelConflictDetected,
	}
}

// ParseChannel converts a wire-format string into a Channel.
func ParseChannel(s string) (Channel, error) {
	for _, ch := range Channels() {
		if Channel(s) == ch {
			return ch, nil
		}
	}
	return "", NewValidationError(fmt.Sprintf("unknown channel %q", s))
}

// ChannelForEntityType returns the update channel carrying changes to the
// given entity kind.
func ChannelForEntityType(t EntityType) Channel {
	switch t {
	case EntityTypeAccount:
		return ChannelAccountUpdated
	case EntityTypeCategory:
		return ChannelCategoryUpdated
	case EntityTypePayee:
		return ChannelPayeeUpdated
	case EntityTypeTransaction:
		return ChannelTransactionUpdated
	case EntityTypeBudget:
		return ChannelBudgetUpdated
	default:
		panic(fmt.Sprintf("no channel for entity type %q", t))
	}
}

// Event is the closed set of payloads carried by the change bus. Every
// variant exposes the channel it belongs on and the workspace whose members
// may see it; the gateway drops events outside a subscriber's workspaces.
type Event interface {
	Channel() Channel
	EventWorkspaceID() uuid.UUID
	isEvent()
}

// AccountUpdated carries the new current version of an account.
type AccountUpdated struct {
	Version EntityVersion `json:"version"`
}

// CategoryUpdated carries the new current version of a category.
type CategoryUpdated struct {
	Version EntityVersion `json:"version"`
}

// PayeeUpdated carries the new current version of a payee.
type PayeeUpdated struct {
	Version EntityVersion `json:"version"`
}

// TransactionUpdated carries the new current version of a transaction.
type TransactionUpdated struct {
	Version EntityVersion `json:"version"`
}

// BudgetUpdated carries the new current version of a budget.
type BudgetUpdated struct {
	Version EntityVersion `json:"version"`
}

// ConflictDetected carries a freshly materialized unresolved conflict.
type ConflictDetected struct {
	Conflict EntityConflict `json:"conflict"`
}

func (AccountUpdated) Channel() Channel     { return ChannelAccountUpdated }
func (CategoryUpdated) Channel() Channel    { return ChannelCategoryUpdated }
func (PayeeUpdated) Channel() Channel       { return ChannelPayeeUpdated }
func (TransactionUpdated) Channel() Channel { return ChannelTransactionUpdated }
func (BudgetUpdated) Channel() Channel      { return ChannelBudgetUpdated }
func (ConflictDetected) Channel() Channel   { return ChannelConflictDetected }

func (e AccountUpdated) EventWorkspaceID() uuid.UUID     { return e.Version.WorkspaceID }
func (e CategoryUpdated) EventWorkspaceID() uuid.UUID    { return e.Version.WorkspaceID }
func (e PayeeUpdated) EventWorkspaceID() uuid.UUID       { return e.Version.WorkspaceID }
func (e TransactionUpdated) EventWorkspaceID() uuid.UUID { return e.Version.WorkspaceID }
func (e BudgetUpdated) EventWorkspaceID() uuid.UUID      { return e.Version.WorkspaceID }
func (e ConflictDetected) EventWorkspaceID() uuid.UUID   { return e.Conflict.WorkspaceID }

func (AccountUpdated) isEvent()     {}
func (CategoryUpdated) isEvent()    {}
func (PayeeUpdated) isEvent()       {}
func (TransactionUpdated) isEvent() {}
func (BudgetUpdated) isEvent()      {}
func (ConflictDetected) isEvent()   {}

// UpdatedEvent wraps a recorded version in the event variant matching its
// entity kind.
func UpdatedEvent(version EntityVersion) Event {
	switch version.EntityType {
	case EntityTypeAccount:
		return AccountUpdated{Version: version}
	case EntityTypeCategory:
		return CategoryUpdated{Version: version}
	case EntityTypePayee:
		return PayeeUpdated{Version: version}
	case EntityTypeTransaction:
		return TransactionUpdated{Version: version}
	case EntityTypeBudget:
		return BudgetUpdated{Version: version}
	default:
		panic(fmt.Sprintf("no update event for entity type %q", version.EntityType))
	}
}
