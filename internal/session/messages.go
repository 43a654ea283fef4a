package session

import "github.com/park285/Cheese-session-server/internal/ledger"

// Outbound message kinds. Every frame carries its kind in "type".
const (
	msgRole             = "role"
	msgGameState        = "game_state"
	msgGameStarted      = "game_started"
	msgUserConnected    = "user_connected"
	msgUserDisconnected = "user_disconnected"
	msgPlayerList       = "player_list"
	msgInfo             = "info"
	msgError            = "error"
)

// RoleMessage announces the receiver's role. Seat and Color are set when the
// receiver also sits as a player.
type RoleMessage struct {
	Type  string `json:"type"`
	Role  string `json:"role"`
	Seat  string `json:"seat,omitempty"`
	Color string `json:"color,omitempty"`
}

type GameStateMessage struct {
	Type      string              `json:"type"`
	GameState []ledger.MoveRecord `json:"gameState"`
}

type GameStartedMessage struct {
	Type string `json:"type"`
	Mode string `json:"mode"`
}

type UserMessage struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

type PlayerListMessage struct {
	Type    string   `json:"type"`
	Clients []string `json:"clients"`
}

// TextMessage is used for both info and error.
type TextMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func gameState(records []ledger.MoveRecord) GameStateMessage {
	if records == nil {
		records = []ledger.MoveRecord{}
	}
	return GameStateMessage{Type: msgGameState, GameState: records}
}
