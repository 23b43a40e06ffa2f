package errors

// Code is a machine-readable error code.
type Code string

const (
	CodeInternal Code = "INTERNAL"

	// Lookup errors
	CodeUserNotFound Code = "USER_NOT_FOUND"
	CodeGameNotFound Code = "GAME_NOT_FOUND"
	CodeTurnNotFound Code = "TURN_NOT_FOUND"

	// Ownership errors
	CodeGameForbidden Code = "GAME_FORBIDDEN"
	CodeTurnForbidden Code = "TURN_FORBIDDEN"

	// State errors
	CodeGameNotStarted     Code = "GAME_NOT_STARTED"
	CodeGameFinished       Code = "GAME_FINISHED"
	CodeGameHasActiveTurn  Code = "GAME_HAS_ACTIVE_TURN"
	CodeTurnAlreadyPlaying Code = "TURN_ALREADY_PLAYING"
	CodeTurnNotCreated     Code = "TURN_NOT_CREATED"
	CodeTurnNotWaging      Code = "TURN_NOT_WAGING"
	CodeTurnNotPlaying     Code = "TURN_NOT_PLAYING"
	CodeTurnNotDealer      Code = "TURN_NOT_DEALER"
	CodeTurnNotSettleable  Code = "TURN_NOT_SETTLEABLE"
	CodeConcurrentUpdate   Code = "CONCURRENT_UPDATE"

	// Input errors
	CodeInvalidPayload    Code = "INVALID_PAYLOAD"
	CodeWagerNotPositive  Code = "WAGER_NOT_POSITIVE"
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeNotEnoughMoney    Code = "NOT_ENOUGH_MONEY"
	CodeUserExists        Code = "USER_EXISTS"
	CodeBadCredentials    Code = "BAD_CREDENTIALS"
)

// Kind maps a code to its category.
func (c Code) Kind() Kind {
	switch c {
	case CodeUserNotFound, CodeGameNotFound, CodeTurnNotFound:
		return KindNotFound

	case CodeGameForbidden, CodeTurnForbidden:
		return KindForbidden

	case CodeGameNotStarted,
		CodeGameFinished,
		CodeGameHasActiveTurn,
		CodeTurnAlreadyPlaying,
		CodeTurnNotCreated,
		CodeTurnNotWaging,
		CodeTurnNotPlaying,
		CodeTurnNotDealer,
		CodeTurnNotSettleable,
		CodeConcurrentUpdate:
		return KindConflict

	case CodeInvalidPayload,
		CodeWagerNotPositive,
		CodeInsufficientFunds,
		CodeNotEnoughMoney,
		CodeUserExists,
		CodeBadCredentials:
		return KindInvalidInput

	default:
		return KindInternal
	}
}
