package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/velora-app/velora/internal/pkg/env"
	"github.com/velora-app/velora/internal/pkg/usercontext"
)

// Claims is the token payload minted by the auth service. This backend only
// verifies; it never issues tokens.
type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// RequireAuth verifies the bearer token and installs the user context for
// downstream handlers. Returns JSON 401 on any verification failure.
func RequireAuth(c *fiber.Ctx) error {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return unauthorized(c, "missing bearer token")
	}

	claims, err := parseToken(strings.TrimSpace(token))
	if err != nil {
		return unauthorized(c, "invalid token")
	}

	usercontext.SetUserContext(c, usercontext.UserContext{
		UserID:     claims.UserID,
		Email:      claims.Email,
		IsLoggedIn: true,
	})
	return c.Next()
}

func parseToken(tokenStr string) (*Claims, error) {
	secret := env.GetEnv("JWT_SECRET", "")
	if secret == "" {
		return nil, errors.New("JWT_SECRET is not configured")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error":   "unauthorized",
		"message": message,
	})
}
