package http

import (
	"net/http"

	"chatnet/internal/core/domain"
	"chatnet/internal/core/services"
	"chatnet/internal/infrastructure/middleware"
	apperrors "chatnet/pkg/errors"

	"github.com/gin-gonic/gin"
)

// OnlineTracker exposes the registry's view of which users currently
// hold a live stream.
type OnlineTracker interface {
	OnlineSet() map[domain.UserID]bool
}

type ChatHandler struct {
	chatService services.ChatService
	authService services.AuthService
	online      OnlineTracker
}

func NewChatHandler(chatService services.ChatService, authService services.AuthService, online OnlineTracker) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		authService: authService,
		online:      online,
	}
}

func (h *ChatHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.GET("/users", h.ListUsers)
		api.GET("/history/:peer/:me", middleware.AuthMiddleware(h.authService), h.History)
	}
}

// ListUsers returns every known user with its online flag, reflecting
// the registry at the moment of the call.
func (h *ChatHandler) ListUsers(c *gin.Context) {
	entries, err := h.chatService.Presence(c.Request.Context(), h.online.OnlineSet())
	if err != nil {
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to list users", http.StatusInternalServerError))
		return
	}
	c.JSON(http.StatusOK, entries)
}

// History returns the conversation between the two path participants.
// The caller must be authenticated and be one of them.
func (h *ChatHandler) History(c *gin.Context) {
	peer := domain.UserID(c.Param("peer"))
	me := domain.UserID(c.Param("me"))

	caller, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.Error(apperrors.NewUnauthorizedError("authentication required"))
		return
	}
	if caller != peer && caller != me {
		c.Error(apperrors.NewForbiddenError("not a participant of this conversation"))
		return
	}

	msgs, err := h.chatService.History(c.Request.Context(), peer, me)
	if err != nil {
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to load history", http.StatusInternalServerError))
		return
	}
	c.JSON(http.StatusOK, msgs)
}
