package middlewares

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const ownerIDLocal = "owner_id"

// JWTAuth verifies the bearer token and stores the authenticated user
// id in the request locals. Token issuance lives elsewhere; this
// middleware only checks signatures handed to it.
func JWTAuth(secret string) fiber.Handler {
	key := []byte(secret)

	return func(c fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing authorization header",
			})
		}

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "authorization header must be a bearer token",
			})
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			log.Debug().Err(err).Msg("Rejected bearer token")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired token",
			})
		}

		subject, err := token.Claims.GetSubject()
		if err != nil || subject == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "token has no subject",
			})
		}

		ownerID, err := strconv.ParseInt(subject, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "token subject is not a user id",
			})
		}

		c.Locals(ownerIDLocal, ownerID)

		return c.Next()
	}
}

// OwnerID returns the authenticated user id placed by JWTAuth. On a
// route missing the middleware the returned error renders as 401, not
// as an internal error.
func OwnerID(c fiber.Ctx) (int64, error) {
	ownerID, ok := c.Locals(ownerIDLocal).(int64)
	if !ok {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "request is not authenticated")
	}

	return ownerID, nil
}
