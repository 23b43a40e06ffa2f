package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"blackjack-backend/internal/models"
	"blackjack-backend/internal/services"
)

type TurnHandler struct {
	gameEngine *services.GameEngine
	log        *zap.SugaredLogger
}

func NewTurnHandler(gameEngine *services.GameEngine, log *zap.SugaredLogger) *TurnHandler {
	return &TurnHandler{
		gameEngine: gameEngine,
		log:        log,
	}
}

func (h *TurnHandler) GetTurn(c *gin.Context) {
	userID := c.GetString("user_id")

	turn, err := h.gameEngine.GetTurn(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"turn":    turnView(turn),
	})
}

func (h *TurnHandler) Wage(c *gin.Context) {
	userID := c.GetString("user_id")

	var req models.WageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	res, err := h.gameEngine.WageTurn(c.Request.Context(), userID, c.Param("id"), *req.Wager)
	h.respondTurn(c, res, err)
}

func (h *TurnHandler) Hit(c *gin.Context) {
	res, err := h.gameEngine.HitTurn(c.Request.Context(), c.GetString("user_id"), c.Param("id"))
	h.respondTurn(c, res, err)
}

// Stand returns the settled turn, dealer cards included.
func (h *TurnHandler) Stand(c *gin.Context) {
	res, err := h.gameEngine.StandTurn(c.Request.Context(), c.GetString("user_id"), c.Param("id"))
	h.respondTurn(c, res, err)
}

func (h *TurnHandler) Settle(c *gin.Context) {
	res, err := h.gameEngine.SettleTurn(c.Request.Context(), c.GetString("user_id"), c.Param("id"))
	h.respondTurn(c, res, err)
}

func (h *TurnHandler) respondTurn(c *gin.Context, res *services.TurnResult, err error) {
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"turn":    turnView(res.Turn),
		"wallet":  res.Wallet,
	})
}
