package domain

import "fmt"

// EntityType identifies which kind of financial record a version or conflict
// refers to. The set is closed; anything else is rejected at the boundary.
type EntityType string

const (
	EntityTypeAccount     EntityType = "ACCOUNT"
	EntityTypeCategory    EntityType = "CATEGORY"
	EntityTypePayee       EntityType = "PAYEE"
	EntityTypeTransaction EntityType = "TRANSACTION"
	EntityTypeBudget      EntityType = "BUDGET"
)

// EntityTypes lists every known entity type in a stable order.
func EntityTypes() []EntityType {
	return []EntityType{
		EntityTypeAccount,
		EntityTypeCategory,
		EntityTypePayee,
		EntityTypeTransaction,
		EntityTypeBudget,
	}
}

// Valid reports whether the entity type is one of the known kinds.
func (t EntityType) Valid() bool {
	switch t {
	case EntityTypeAccount, EntityTypeCategory, EntityTypePayee, EntityTypeTransaction, EntityTypeBudget:
		return true
	}
	return false
}

func (t EntityType) String() string {
	return string(t)
}

// ParseEntityType converts a wire-format string into an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !t.Valid() {
		return "", NewValidationError(fmt.Sprintf("unknown entity type %q", s))
	}
	return t, nil
}
