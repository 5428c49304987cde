package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/internal/pkg/security"
	"github.com/ManuelReschke/PayFox/internal/pkg/usercontext"
)

type loginRequest struct {
	Username interface{} `json:"username"`
	Password interface{} `json:"password"`
}

// HandleLogin exchanges the demo credentials for a session token.
func (a *API) HandleLogin(c *fiber.Ctx) error {
	var in loginRequest
	decodeJSONBody(c, &in)
	username := strings.TrimSpace(scalarString(in.Username))
	password := strings.TrimSpace(scalarString(in.Password))

	if !a.credentials.Check(username, password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid credentials"})
	}

	token, err := security.IssueSessionToken(username, a.secretKey, a.now())
	if err != nil {
		log.Errorf("[Auth] failed to issue token: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to issue token"})
	}
	log.Infof("[Auth] login user=%s", username)
	return c.JSON(fiber.Map{"token": token, "user": fiber.Map{"username": username}})
}

// HandleMe returns the user behind the session token.
func (a *API) HandleMe(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"user": fiber.Map{"username": usercontext.GetUsername(c)}})
}
