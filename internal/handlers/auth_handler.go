package handlers

import (
	"log"

	"apotek/internal/services"

	"github.com/gofiber/fiber/v2"
)

// AuthHandler handles operator login.
type AuthHandler struct {
	service *services.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(service *services.AuthService) *AuthHandler {
	return &AuthHandler{
		service: service,
	}
}

// RegisterRoutes registers the auth routes.
func (h *AuthHandler) RegisterRoutes(router fiber.Router) {
	auth := router.Group("/auth")
	auth.Post("/login", h.HandleLogin)
}

// HandleLogin exchanges operator credentials for a token.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	var credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&credentials); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
		})
	}
	if credentials.Username == "" || credentials.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Username and password are required",
		})
	}

	token, err := h.service.Login(credentials.Username, credentials.Password)
	if err != nil {
		log.Printf("Login failed for %q: %v", credentials.Username, err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Invalid credentials",
		})
	}
	return c.JSON(fiber.Map{
		"token": token,
	})
}
