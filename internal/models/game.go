package models

import "time"

type GameStatus string

const (
	GameStatusCreated  GameStatus = "created"
	GameStatusPlaying  GameStatus = "playing"
	GameStatusFinished GameStatus = "finished"
)

// Game owns an append-only sequence of turns for one user.
type Game struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Status    GameStatus `json:"status"`
	TurnIDs   []string   `json:"turn_ids"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// LastTurnID returns the most recent turn of the game, if any.
func (g *Game) LastTurnID() (string, bool) {
	if len(g.TurnIDs) == 0 {
		return "", false
	}
	return g.TurnIDs[len(g.TurnIDs)-1], true
}

func (g Game) Clone() Game {
	g.TurnIDs = append([]string(nil), g.TurnIDs...)
	return g
}
