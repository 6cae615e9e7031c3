package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/aifix/chat-auth/internal/core/domain"
)

// AdminOnly lets through sessions whose user id is on the allow-list. Ids
// are assigned by the server, so a caller cannot claim one by registering
// or editing a profile. It must run after Auth. An empty list closes the
// admin surface entirely.
func AdminOnly(adminIDs ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		if id = strings.TrimSpace(id); id != "" {
			allowed[id] = struct{}{}
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := Claims(c)
			if claims == nil {
				return domain.ErrNoToken
			}
			if _, ok := allowed[claims.UserID]; !ok {
				return domain.ErrForbidden
			}
			return next(c)
		}
	}
}
