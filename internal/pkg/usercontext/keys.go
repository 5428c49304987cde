package usercontext

// Shared Locals keys used across controllers and middlewares
const (
	KeyUsername      = "username"
	KeyFromProtected = "from_protected"
	keyUserContext   = "USER_CONTEXT"
)
