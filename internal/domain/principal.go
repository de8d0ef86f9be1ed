package domain

const RoleAdmin = "admin"

// Principal is the authenticated caller as asserted by the bearer token.
type Principal struct {
	UserID uint64
	Roles  []string
}

func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (p Principal) IsAdmin() bool {
	return p.HasRole(RoleAdmin)
}
