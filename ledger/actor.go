package ledger

import "github.com/google/uuid"

// Roles a user can hold.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Actor is the authenticated user on whose behalf an operation runs. It is
// passed explicitly into every service call.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

// Privileged reports whether the actor may act on other members' records.
func (a Actor) Privileged() bool {
	return a.Role == RoleAdmin
}

// CanModify reports whether the actor may mutate a record owned by ownerID.
func (a Actor) CanModify(ownerID uuid.UUID) bool {
	return a.Privileged() || (a.UserID != uuid.Nil && a.UserID == ownerID)
}
