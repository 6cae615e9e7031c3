package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/aifix/chat-auth/internal/api/middleware"
	"github.com/aifix/chat-auth/internal/core/domain"
)

// ctxClaims extracts the session claims injected by the Auth middleware.
// Absence means the route was mounted without Auth: treat it as no token.
func ctxClaims(c echo.Context) (*domain.SessionClaims, error) {
	claims := middleware.Claims(c)
	if claims == nil || claims.UserID == "" {
		return nil, domain.ErrNoToken
	}
	return claims, nil
}
