package services

import "time"

const (
	KeyUser             = "user:%s"
	KeyUserByEmail      = "user:email:%s"
	KeyUserByUsername   = "user:username:%s"
	KeyUsers            = "users"
	KeyUserGames        = "user:%s:games"
	KeyGame             = "game:%s"
	KeyTurn             = "turn:%s"
	KeyTransaction      = "transaction:%s"
	KeyUserTransactions = "user:%s:transactions"
	KeyRateLimit        = "ratelimit:%s:%s"

	TTLTransaction = 30 * 24 * time.Hour // 30 days

	MaxTransactionsPerUser = 100
)
