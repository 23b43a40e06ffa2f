package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"blackjack-backend/internal/models"
	"blackjack-backend/internal/services"
)

type UserHandler struct {
	userService *services.UserService
	log         *zap.SugaredLogger
}

func NewUserHandler(userService *services.UserService, log *zap.SugaredLogger) *UserHandler {
	return &UserHandler{
		userService: userService,
		log:         log,
	}
}

func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	user, err := h.userService.GetUser(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": userView(user),
		"session": gin.H{
			"session_id": c.GetString("session_id"),
		},
	})
}

// UpdateCurrentUser applies a partial update to the caller's account.
func (h *UserHandler) UpdateCurrentUser(c *gin.Context) {
	var req models.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := h.userService.UpdateUser(c.Request.Context(), c.GetString("user_id"), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    userView(user),
	})
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultPageSize)))
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))

	users, err := h.userService.ListUsers(c.Request.Context(), limit, page)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response := make([]gin.H, 0, len(users))
	for _, user := range users {
		response = append(response, playerView(user))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"users":   response,
		"count":   len(response),
		"page":    page,
	})
}

// DeleteCurrentUser closes the account along with its games.
func (h *UserHandler) DeleteCurrentUser(c *gin.Context) {
	if err := h.userService.DeleteUser(c.Request.Context(), c.GetString("user_id")); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *UserHandler) ListTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	txs, err := h.userService.ListTransactions(c.Request.Context(), c.GetString("user_id"), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response := make([]gin.H, 0, len(txs))
	for _, tx := range txs {
		response = append(response, transactionView(tx))
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"transactions": response,
		"count":        len(response),
	})
}
