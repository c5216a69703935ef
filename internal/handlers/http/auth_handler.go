package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"chatnet/internal/core/domain"
	"chatnet/internal/core/services"
	apperrors "chatnet/pkg/errors"
	"chatnet/pkg/validation"

	"github.com/gin-gonic/gin"
)

// PresenceNotifier lets the HTTP surface trigger a presence broadcast
// when the set of known users changes.
type PresenceNotifier interface {
	NotifyUserRegistered(ctx context.Context)
}

type AuthHandler struct {
	authService services.AuthService
	notifier    PresenceNotifier
}

func NewAuthHandler(authService services.AuthService, notifier PresenceNotifier) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		notifier:    notifier,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.POST("/register", h.Register)
		api.POST("/login", h.Login)
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.Error(apperrors.NewInvalidInputError("missing fields"))
		return
	}
	if err := validation.ValidateUsername(req.Username); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	user, token, err := h.authService.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrUsernameTaken) {
			c.Error(apperrors.NewConflictError("username taken"))
			return
		}
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to register user", http.StatusInternalServerError))
		return
	}

	if h.notifier != nil {
		h.notifier.NotifyUserRegistered(c.Request.Context())
	}

	c.JSON(http.StatusOK, authResponse{
		Token: token,
		User:  userResponse{ID: user.ID, Username: user.Username},
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	req.Username = strings.TrimSpace(req.Username)

	user, token, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		// Unknown username and wrong password share one response so the
		// endpoint cannot be used for username enumeration.
		if errors.Is(err, services.ErrInvalidCredentials) {
			c.Error(apperrors.NewUnauthorizedError("invalid credentials"))
			return
		}
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to log in", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, authResponse{
		Token: token,
		User:  userResponse{ID: user.ID, Username: user.Username},
	})
}
