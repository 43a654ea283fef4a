package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/park285/Cheese-session-server/internal/gamemode"
	"github.com/park285/Cheese-session-server/internal/ledger"
)

const (
	cmdSetMode       = "admin.set_mode"
	cmdSetColor      = "admin.set_color"
	cmdStartGame     = "admin.start_game"
	cmdTransferAdmin = "admin.transfer_admin"
	cmdWhiteMove     = "white_move"
	cmdBlackMove     = "black_move"
	cmdReset         = "reset"
)

// Command is one parsed inbound command.
type Command interface {
	Name() string
}

type SetMode struct{ Mode gamemode.Mode }
type SetColor struct{ Choice gamemode.ColorChoice }
type StartGame struct{}
type TransferAdmin struct{ Target string }

// Move is a white_move or black_move half-move.
type Move struct {
	Color ledger.Color
	Move  string
}
type Reset struct{}

func (SetMode) Name() string       { return cmdSetMode }
func (SetColor) Name() string      { return cmdSetColor }
func (StartGame) Name() string     { return cmdStartGame }
func (TransferAdmin) Name() string { return cmdTransferAdmin }
func (Reset) Name() string         { return cmdReset }
func (m Move) Name() string {
	if m.Color == ledger.Black {
		return cmdBlackMove
	}
	return cmdWhiteMove
}

// ParseError carries the command name (when known) with the parse failure.
type ParseError struct {
	Command string
	Err     error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %q: %v", e.Command, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// maxFieldLen bounds free-text fields (move, targetWs).
const maxFieldLen = 256

type envelope struct {
	Command  string  `json:"command"`
	Mode     *string `json:"mode"`
	Color    *string `json:"color"`
	TargetWs *string `json:"targetWs"`
	Move     *string `json:"move"`
}

// ParseCommand is the single decode step from a raw frame to a Command.
func ParseCommand(raw []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ParseError{Err: malformed("invalid JSON")}
	}
	name := strings.TrimSpace(env.Command)
	fail := func(err error) (Command, error) { return nil, &ParseError{Command: name, Err: err} }

	switch name {
	case cmdSetMode:
		if env.Mode == nil {
			return fail(malformed("mode is required"))
		}
		m, err := gamemode.ParseMode(*env.Mode)
		if err != nil {
			return fail(err)
		}
		return SetMode{Mode: m}, nil
	case cmdSetColor:
		if env.Color == nil {
			return fail(malformed("color is required"))
		}
		ch, err := gamemode.ParseColorChoice(*env.Color)
		if err != nil {
			return fail(err)
		}
		return SetColor{Choice: ch}, nil
	case cmdStartGame:
		return StartGame{}, nil
	case cmdTransferAdmin:
		if env.TargetWs == nil || strings.TrimSpace(*env.TargetWs) == "" {
			return fail(malformed("targetWs is required"))
		}
		if len(*env.TargetWs) > maxFieldLen {
			return fail(malformed("targetWs is too long"))
		}
		return TransferAdmin{Target: strings.TrimSpace(*env.TargetWs)}, nil
	case cmdWhiteMove, cmdBlackMove:
		if env.Move == nil || strings.TrimSpace(*env.Move) == "" {
			return fail(malformed("move is required"))
		}
		if len(*env.Move) > maxFieldLen {
			return fail(malformed("move is too long"))
		}
		color := ledger.White
		if name == cmdBlackMove {
			color = ledger.Black
		}
		return Move{Color: color, Move: strings.TrimSpace(*env.Move)}, nil
	case cmdReset:
		return Reset{}, nil
	case "":
		return fail(malformed("command is required"))
	default:
		return fail(ErrUnknownCommand)
	}
}

func commandName(err error) string {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Command
	}
	return ""
}
