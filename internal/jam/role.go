package jam

import "strings"

// Role is one of the four instrument slots of a jam.
type Role int

const (
	RoleDrums Role = iota
	RoleBass
	RoleLeads
	RoleFX
)

// Roles lists every role in poll option order.
var Roles = [...]Role{RoleDrums, RoleBass, RoleLeads, RoleFX}

func (r Role) Valid() bool { return r >= RoleDrums && r <= RoleFX }

// String returns the display name used as the poll option text.
func (r Role) String() string {
	switch r {
	case RoleDrums:
		return "Drums"
	case RoleBass:
		return "Bass"
	case RoleLeads:
		return "Leads"
	case RoleFX:
		return "FX"
	default:
		return "Unknown"
	}
}

// Column is the storage column holding the occupant's display name.
// The occupant's user id lives in Column()+"_user_id".
func (r Role) Column() string {
	switch r {
	case RoleDrums:
		return "drums"
	case RoleBass:
		return "bass"
	case RoleLeads:
		return "leads"
	case RoleFX:
		return "fx"
	default:
		return ""
	}
}

// ParseRole maps an option name (case-insensitive) back to its role.
func ParseRole(name string) (Role, bool) {
	for _, r := range Roles {
		if strings.EqualFold(r.String(), strings.TrimSpace(name)) {
			return r, true
		}
	}
	return 0, false
}

// DefaultOptions returns a fresh copy of the poll options.
func DefaultOptions() []string {
	out := make([]string, len(Roles))
	for i, r := range Roles {
		out[i] = r.String()
	}
	return out
}

// joinRoles renders roles as "Drums, Bass".
func joinRoles(rs []Role) string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.String()
	}
	return strings.Join(names, ", ")
}
