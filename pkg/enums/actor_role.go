package enums

import "fmt"

// ActorRole is the role carried by an authenticated caller.
type ActorRole string

const (
	ActorRoleCustomer ActorRole = "customer"
	ActorRoleVendor   ActorRole = "vendor"
	ActorRoleAdmin    ActorRole = "admin"
)

var validActorRoles = []ActorRole{
	ActorRoleCustomer,
	ActorRoleVendor,
	ActorRoleAdmin,
}

// String implements fmt.Stringer.
func (s ActorRole) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ActorRole.
func (s ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into a ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
