package session

import (
	"errors"
	"fmt"

	"github.com/park285/Cheese-session-server/internal/gamemode"
	"github.com/park285/Cheese-session-server/internal/identity"
	"github.com/park285/Cheese-session-server/internal/ledger"
	"github.com/park285/Cheese-session-server/internal/roles"
)

// Error taxonomy surfaced to clients. Everything except ErrUnauthorized is answered
// with a private error message; none of them closes the connection.
var (
	ErrUnauthorized        = identity.ErrUnauthorized
	ErrMalformedCommand    = errors.New("malformed command")
	ErrUnknownCommand      = fmt.Errorf("%w: unknown command", ErrMalformedCommand)
	ErrWrongRole           = errors.New("wrong role for command")
	ErrNotOngoing          = errors.New("no game in progress")
	ErrOutOfTurn           = ledger.ErrOutOfTurn
	ErrConfigurationLocked = gamemode.ErrConfigurationLocked
	ErrNotReady            = gamemode.ErrNotReady
	ErrTargetUnavailable   = roles.ErrTargetUnavailable
	ErrStore               = ledger.ErrStore
)

// outOfTurnError remembers whose turn it was so the reply can say who to wait for.
type outOfTurnError struct {
	turn  ledger.Color
	empty bool
}

func (e *outOfTurnError) Error() string { return fmt.Sprintf("out of turn: %s to move", e.turn) }
func (e *outOfTurnError) Unwrap() error { return ErrOutOfTurn }

// malformedError names what was wrong with the payload.
type malformedError struct{ detail string }

func malformed(detail string) error { return &malformedError{detail: detail} }

func (e *malformedError) Error() string { return ErrMalformedCommand.Error() + ": " + e.detail }
func (e *malformedError) Unwrap() error { return ErrMalformedCommand }

// notReadyError carries the reason shown to the admin.
type notReadyError struct{ reason string }

func (e *notReadyError) Error() string { return "not ready: " + e.reason }
func (e *notReadyError) Unwrap() error { return ErrNotReady }

// errorKey maps an error to its catalog key and template data.
func errorKey(err error, command string) (string, map[string]any) {
	data := map[string]any{"Command": command}
	var (
		oot *outOfTurnError
		nr  *notReadyError
		mf  *malformedError
	)
	switch {
	case errors.Is(err, ErrUnknownCommand):
		return "error.unknown_command", data
	case errors.Is(err, gamemode.ErrInvalidMode):
		return "error.invalid_mode", data
	case errors.Is(err, gamemode.ErrInvalidColor):
		return "error.invalid_color", data
	case errors.As(err, &mf):
		data["Detail"] = mf.detail
		return "error.malformed", data
	case errors.Is(err, ErrMalformedCommand):
		data["Detail"] = "invalid payload"
		return "error.malformed", data
	case errors.Is(err, roles.ErrNotAdmin):
		return "error.not_admin", data
	case errors.Is(err, ErrWrongRole):
		return "error.wrong_role", data
	case errors.Is(err, ErrConfigurationLocked):
		return "error.locked", data
	case errors.As(err, &nr):
		data["Reason"] = nr.reason
		return "error.not_ready", data
	case errors.Is(err, ErrNotReady):
		data["Reason"] = "not ready"
		return "error.not_ready", data
	case errors.Is(err, ErrNotOngoing):
		return "error.not_ongoing", data
	case errors.As(err, &oot):
		switch {
		case oot.empty:
			return "error.white_first", data
		case oot.turn == ledger.Black:
			return "error.wait_black", data
		default:
			return "error.wait_white", data
		}
	case errors.Is(err, ErrOutOfTurn):
		return "error.wait_white", data
	case errors.Is(err, ErrTargetUnavailable):
		return "error.target_unavailable", data
	default:
		return "error.server", data
	}
}
