package shared

import "strings"

// Actor identifies who performed a mutation. The caller has already
// authorised the action; the ledger only records it.
type Actor struct {
	Name string `json:"name" validate:"required,max=120"`
	Role string `json:"role" validate:"required,max=60"`
}

// Valid reports whether both name and role are present.
func (a Actor) Valid() bool {
	return strings.TrimSpace(a.Name) != "" && strings.TrimSpace(a.Role) != ""
}
