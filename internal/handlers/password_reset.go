package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/epetcare/notifier/internal/services"
	appErrors "github.com/epetcare/notifier/pkg/errors"
	"github.com/epetcare/notifier/pkg/response"
)

// PasswordResetHandler exposes the three-step reset flow: request a code,
// verify it, confirm a new password.
type PasswordResetHandler struct {
	service *services.PasswordResetService
}

// NewPasswordResetHandler constructs a password reset handler.
func NewPasswordResetHandler(service *services.PasswordResetService) (*PasswordResetHandler, error) {
	if service == nil {
		return nil, appErrors.New("INVALID_DEPENDENCY", "password reset service must be provided", http.StatusInternalServerError)
	}
	return &PasswordResetHandler{service: service}, nil
}

type resetRequestPayload struct {
	Email string `json:"email" validate:"required,email"`
}

// Request issues a code. The response is identical whether or not the email
// has an account.
func (h *PasswordResetHandler) Request(c *gin.Context) {
	var req resetRequestPayload
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.service.Request(c.Request.Context(), req.Email); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "If the address has an account, a code has been sent.",
	})
}

type resetVerifyPayload struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// Verify checks a code and hands back the reset session token.
func (h *PasswordResetHandler) Verify(c *gin.Context) {
	var req resetVerifyPayload
	if !bindAndValidate(c, &req) {
		return
	}

	token, err := h.service.Verify(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"reset_token": token})
}

type resetConfirmPayload struct {
	ResetToken  string `json:"reset_token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// Confirm consumes the reset session and sets the new password.
func (h *PasswordResetHandler) Confirm(c *gin.Context) {
	var req resetConfirmPayload
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.service.Consume(c.Request.Context(), req.ResetToken, req.NewPassword); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Password updated."})
}
