package ledger

import "github.com/google/uuid"

// Role is the privilege level of an acting identity
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleOwner   Role = "OWNER"
	RoleStaff   Role = "STAFF"
	RoleService Role = "SERVICE"
)

// Actor is the authenticated identity performing an operation. It is
// attached to audit records and drives privilege checks.
type Actor struct {
	ID   uuid.UUID
	Name string
	Role Role
}

// IsAdmin reports whether the actor holds administrator privilege
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// IsZero reports whether no identity was supplied
func (a Actor) IsZero() bool {
	return a.ID == uuid.Nil && a.Name == ""
}

// ServiceActor builds the identity scheduled jobs act under
func ServiceActor(id uuid.UUID, name string) Actor {
	return Actor{ID: id, Name: name, Role: RoleService}
}
