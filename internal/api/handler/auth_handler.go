package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/aifix/chat-auth/internal/core/domain"
	"github.com/aifix/chat-auth/internal/core/ports"
	"github.com/aifix/chat-auth/internal/pkg/token"
)

type AuthHandler struct {
	authService ports.AuthService
	cookies     CookiePolicy
	extract     token.Extractor
	log         zerolog.Logger
}

func NewAuthHandler(authService ports.AuthService, cookies CookiePolicy, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		cookies:     cookies,
		extract:     token.DefaultExtractor(),
		log:         log.With().Str("component", "auth_handler").Logger(),
	}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	Remember bool   `json:"remember"`
}

type updateProfileRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

type authResponse struct {
	Success   bool             `json:"success"`
	User      *domain.UserView `json:"user"`
	Token     string           `json:"token,omitempty"`
	ExpiresAt *time.Time       `json:"expiresAt,omitempty"`
}

type statusResponse struct {
	Success        bool             `json:"success"`
	User           *domain.UserView `json:"user"`
	TokenRefreshed bool             `json:"tokenRefreshed"`
	Token          string           `json:"token,omitempty"`
	ExpiresAt      time.Time        `json:"expiresAt"`
}

type userResponse struct {
	Success bool             `json:"success"`
	User    *domain.UserView `json:"user"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Register creates a new account and starts a session.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "User registration details"
// @Success      201   {object}  authResponse
// @Failure      400   {object}  map[string]any
// @Failure      409   {object}  map[string]any
// @Failure      500   {object}  map[string]any
// @Router       /api/auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.authService.Register(c.Request().Context(), domain.NewUser{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	h.cookies.setSession(c, res.Token)
	return c.JSON(http.StatusCreated, newAuthResponse(res))
}

// Login authenticates a user, sets the session cookies and returns the token.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  authResponse
// @Failure      400   {object}  map[string]any
// @Failure      401   {object}  map[string]any
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.authService.Login(c.Request().Context(), req.Email, req.Password, req.Remember)
	if err != nil {
		return err
	}

	h.cookies.setSession(c, res.Token)
	return c.JSON(http.StatusOK, newAuthResponse(res))
}

// Me reports the session behind the request token, reissuing it near expiry.
//
// @Summary      Current session
// @Tags         auth
// @Produce      json
// @Param        token  query     string  false  "session token for clients that cannot send cookies or headers"
// @Success      200    {object}  statusResponse
// @Failure      401    {object}  map[string]any
// @Failure      403    {object}  map[string]any
// @Security     BearerAuth
// @Router       /api/auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	res, err := h.authService.Status(c.Request().Context(), h.extract(c.Request()))
	if err != nil {
		return err
	}

	body := statusResponse{
		Success:        true,
		User:           res.User,
		TokenRefreshed: res.Refreshed,
		ExpiresAt:      res.ExpiresAt(),
	}
	if res.Refreshed {
		h.cookies.setSession(c, res.Token)
		body.Token = res.Token.Value
	}
	return c.JSON(http.StatusOK, body)
}

// Logout clears the session cookies. It always succeeds.
//
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Success      200  {object}  messageResponse
// @Router       /api/auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	if err := h.authService.Logout(c.Request().Context(), h.extract(c.Request())); err != nil {
		h.log.Warn().Err(err).Msg("token revocation failed")
	}
	h.cookies.clearSession(c)
	return c.JSON(http.StatusOK, messageResponse{Success: true, Message: "logged out"})
}

// UpdateProfile changes the caller's name or email.
//
// @Summary      Update own profile
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      updateProfileRequest  true  "Fields to change"
// @Success      200   {object}  userResponse
// @Failure      400   {object}  map[string]any
// @Failure      401   {object}  map[string]any
// @Failure      409   {object}  map[string]any
// @Security     BearerAuth
// @Router       /api/users/me [patch]
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}

	var req updateProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if req.Name == nil && req.Email == nil {
		return domain.NewValidationError("body", "nothing to update")
	}

	user, err := h.authService.UpdateProfile(c.Request().Context(), claims.UserID, domain.UserPatch{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResponse{Success: true, User: user})
}

func newAuthResponse(res *ports.AuthResult) authResponse {
	exp := res.Token.ExpiresAt
	return authResponse{
		Success:   true,
		User:      res.User,
		Token:     res.Token.Value,
		ExpiresAt: &exp,
	}
}
