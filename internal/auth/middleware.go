package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const LocalAthleteID = "athlete_id"

// JWTMiddleware validates bearer tokens and stores athlete_id in locals.
func JWTMiddleware(secret string) fiber.Handler {
	secretBytes := []byte(secret)
	return func(c *fiber.Ctx) error {
		token := parseBearer(c.Get("Authorization"))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		claims, err := parseClaims(token, secretBytes)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		c.Locals(LocalAthleteID, claims.AthleteID)
		return c.Next()
	}
}

// AthleteID reads the id JWTMiddleware stored for this request.
func AthleteID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalAthleteID).(string)
	return id
}

func parseBearer(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
