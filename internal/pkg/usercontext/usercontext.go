package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext represents the authenticated caller of a request
type UserContext struct {
	Username   string `json:"username"`
	IsLoggedIn bool   `json:"is_logged_in"`
}

// SetUser marks the request as authenticated for username
func SetUser(c *fiber.Ctx, username string) {
	c.Locals(keyUserContext, UserContext{Username: username, IsLoggedIn: true})
	c.Locals(KeyFromProtected, true)
	c.Locals(KeyUsername, username)
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(keyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{IsLoggedIn: false}
}

// IsLoggedIn checks if the current user is logged in
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// GetUsername returns the current user's username, or empty string if not logged in
func GetUsername(c *fiber.Ctx) string {
	return GetUserContext(c).Username
}
