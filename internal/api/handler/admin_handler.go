package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/aifix/chat-auth/internal/core/domain"
	"github.com/aifix/chat-auth/internal/core/ports"
)

// AdminHandler serves account administration for allow-listed operators.
type AdminHandler struct {
	users ports.UserAdmin
	log   zerolog.Logger
}

func NewAdminHandler(users ports.UserAdmin, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{users: users, log: log.With().Str("component", "admin_handler").Logger()}
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active disabled suspended"`
}

type resetPasswordRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type userListResponse struct {
	Success bool              `json:"success"`
	Users   []domain.UserView `json:"users"`
	Total   int               `json:"total"`
}

// ListUsers returns every account, freshly read from the backend.
//
// @Summary      List users
// @Tags         admin
// @Produce      json
// @Success      200  {object}  userListResponse
// @Failure      401  {object}  map[string]any
// @Failure      403  {object}  map[string]any
// @Security     BearerAuth
// @Router       /api/admin/users [get]
func (h *AdminHandler) ListUsers(c echo.Context) error {
	users, err := h.users.List(c.Request().Context(), ports.SkipCache())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userListResponse{Success: true, Users: users, Total: len(users)})
}

// SetStatus activates, disables or suspends an account.
//
// @Summary      Change account status
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        id    path      string            true  "User ID"
// @Param        body  body      setStatusRequest  true  "New status"
// @Success      200   {object}  userResponse
// @Failure      400   {object}  map[string]any
// @Failure      404   {object}  map[string]any
// @Security     BearerAuth
// @Router       /api/admin/users/{id}/status [patch]
func (h *AdminHandler) SetStatus(c echo.Context) error {
	var req setStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, err := h.users.SetStatus(c.Request().Context(), c.Param("id"), domain.UserStatus(req.Status))
	if err != nil {
		return err
	}
	h.log.Info().Str("user_id", user.ID).Str("status", req.Status).Msg("account status changed by admin")
	return c.JSON(http.StatusOK, userResponse{Success: true, User: user})
}

// ResetPassword sets a new password for the account using email.
//
// @Summary      Reset a password
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        body  body      resetPasswordRequest  true  "Account email and new password"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  map[string]any
// @Failure      404   {object}  map[string]any
// @Security     BearerAuth
// @Router       /api/admin/users/password-reset [post]
func (h *AdminHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.users.ResetPassword(c.Request().Context(), req.Email, req.Password); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Success: true, Message: "password updated"})
}

// DeleteUser removes an account permanently.
//
// @Summary      Delete a user
// @Tags         admin
// @Produce      json
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  messageResponse
// @Failure      404  {object}  map[string]any
// @Security     BearerAuth
// @Router       /api/admin/users/{id} [delete]
func (h *AdminHandler) DeleteUser(c echo.Context) error {
	id := c.Param("id")
	if err := h.users.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	h.log.Info().Str("user_id", id).Msg("account deleted by admin")
	return c.JSON(http.StatusOK, messageResponse{Success: true, Message: "user deleted"})
}
