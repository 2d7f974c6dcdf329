package events

// Game event payloads. Addresses are hex-encoded ed25519 public keys.

type GameCreated struct {
	GameID     uint64 `json:"game_id"`
	Challenger string `json:"challenger"`
	BetAmount  uint64 `json:"bet_amount"`
}

type GameJoined struct {
	GameID     uint64 `json:"game_id"`
	Challenger string `json:"challenger"`
	Opponent   string `json:"opponent"`
	BetAmount  uint64 `json:"bet_amount"`
}

type TorpedoLaunched struct {
	GameID   uint64 `json:"game_id"`
	Attacker string `json:"attacker"`
	Defender string `json:"defender"`
	Row      int    `json:"row"`
	Col      int    `json:"col"`
	NMove    uint64 `json:"n_move"`
}

// TorpedoResult resolves the launch with the same NMove. Result is 1 for a
// hit and 0 for a miss.
type TorpedoResult struct {
	GameID   uint64 `json:"game_id"`
	Attacker string `json:"attacker"`
	Defender string `json:"defender"`
	Row      int    `json:"row"`
	Col      int    `json:"col"`
	Result   int    `json:"result"`
	NMove    uint64 `json:"n_move"`
}

// GameFinished carries empty Winner and Loser for refund outcomes.
type GameFinished struct {
	GameID      uint64 `json:"game_id"`
	Winner      string `json:"winner"`
	Loser       string `json:"loser"`
	WinningCond string `json:"winning_cond"`
}

type GamePaid struct {
	GameID   uint64 `json:"game_id"`
	Receiver string `json:"receiver"`
	Amount   uint64 `json:"amount"`
	Cond     string `json:"cond"`
}

// BoardRevealed publishes a player's full board after a win confirmation
// whose reveal matched both commitments.
type BoardRevealed struct {
	GameID         uint64 `json:"game_id"`
	Player         string `json:"player"`
	Board          string `json:"board"`
	ShipsPositions string `json:"ships_positions"`
}

// TxExecuted summarises a successful transaction and the game events it
// produced.
type TxExecuted struct {
	Type string  `json:"type"`
	From string  `json:"from"`
	Logs []Event `json:"logs,omitempty"`
}

// TxFailed reports a transaction dropped from a block.
type TxFailed struct {
	Type   string `json:"type"`
	From   string `json:"from"`
	Reason string `json:"reason"`
}

// BlockCommit is emitted once per committed block.
type BlockCommit struct {
	Hash string `json:"hash"`
	Txs  int    `json:"txs"`
}

// TokenTransfer records a native token transfer.
type TokenTransfer struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}
