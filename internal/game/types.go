package game

// Request/response shapes for the HTTP and websocket surfaces. Amounts are
// in the smallest currency unit; sides travel as "heads"/"tails" strings and
// commitments as 64-char hex.

type CreateGameRequest struct {
	UserID    string `json:"user_id"`
	GameID    uint64 `json:"game_id"`
	BetAmount uint64 `json:"bet_amount"`
}

type JoinGameRequest struct {
	UserID string `json:"user_id"`
}

type CommitRequest struct {
	UserID     string `json:"user_id"`
	Commitment string `json:"commitment"`
}

type RevealRequest struct {
	UserID string `json:"user_id"`
	Choice string `json:"choice"`
	Secret uint64 `json:"secret"`
}

type CancelRequest struct {
	UserID string `json:"user_id"`
}

type RoomResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Room    *Room  `json:"room,omitempty"`
}

// Event payloads broadcast to the UI layer. None of these affect protocol
// correctness; they mirror the state transitions for display.

type EventMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type GameCreatedMessage struct {
	Creator   string `json:"creator"`
	GameID    uint64 `json:"game_id"`
	BetAmount uint64 `json:"bet_amount"`
}

type PlayerJoinedMessage struct {
	Creator string `json:"creator"`
	GameID  uint64 `json:"game_id"`
	PlayerB string `json:"player_b"`
}

type CommitmentMadeMessage struct {
	Creator string `json:"creator"`
	GameID  uint64 `json:"game_id"`
	Player  string `json:"player"`
}

type ChoiceRevealedMessage struct {
	Creator string `json:"creator"`
	GameID  uint64 `json:"game_id"`
	Player  string `json:"player"`
	Choice  string `json:"choice"`
}

type GameResolvedMessage struct {
	Creator      string `json:"creator"`
	GameID       uint64 `json:"game_id"`
	Winner       string `json:"winner"`
	CoinResult   string `json:"coin_result,omitempty"`
	TieBreak     bool   `json:"tie_break"`
	WinnerPayout uint64 `json:"winner_payout"`
	HouseFee     uint64 `json:"house_fee"`
}

type GameCancelledMessage struct {
	Creator string `json:"creator"`
	GameID  uint64 `json:"game_id"`
	Refund  uint64 `json:"refund_per_player"`
	Timeout bool   `json:"timeout"`
}
