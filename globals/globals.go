package globals

// Context keys
type ContextKey string

const (
	UserIDKey   ContextKey = "userId"
	UsernameKey ContextKey = "username"
	RoleKey     ContextKey = "role"
)

// RoleAdmin is the role that unlocks the organizer endpoints.
const RoleAdmin = "admin"
