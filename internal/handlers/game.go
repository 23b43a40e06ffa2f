package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"blackjack-backend/internal/services"
)

type GameHandler struct {
	gameEngine *services.GameEngine
	log        *zap.SugaredLogger
}

func NewGameHandler(gameEngine *services.GameEngine, log *zap.SugaredLogger) *GameHandler {
	return &GameHandler{
		gameEngine: gameEngine,
		log:        log,
	}
}

// CreateGame opens a game and deals its first turn.
func (h *GameHandler) CreateGame(c *gin.Context) {
	userID := c.GetString("user_id")

	state, err := h.gameEngine.StartGame(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"game":    gameStateView(state),
	})
}

func (h *GameHandler) ListGames(c *gin.Context) {
	userID := c.GetString("user_id")

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultPageSize)))
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))

	games, err := h.gameEngine.ListGames(c.Request.Context(), userID, limit, page)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response := make([]gin.H, 0, len(games))
	for _, game := range games {
		response = append(response, gameView(game))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"games":   response,
		"count":   len(response),
		"page":    page,
	})
}

func (h *GameHandler) GetGame(c *gin.Context) {
	userID := c.GetString("user_id")

	state, err := h.gameEngine.GetGameState(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"game":    gameStateView(state),
	})
}

func (h *GameHandler) DeleteGame(c *gin.Context) {
	userID := c.GetString("user_id")

	if err := h.gameEngine.DeleteGame(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *GameHandler) FinishGame(c *gin.Context) {
	userID := c.GetString("user_id")

	game, err := h.gameEngine.FinishGame(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"game":    gameView(game),
	})
}

func (h *GameHandler) CreateTurn(c *gin.Context) {
	userID := c.GetString("user_id")

	turn, err := h.gameEngine.CreateTurn(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"turn":    turnView(turn),
	})
}
