package archive

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/Cheese-session-server/internal/bot"
	"github.com/park285/Cheese-session-server/internal/ledger"
)

var ErrNotFound = errors.New("archived game not found")

// Record is one finished game.
type Record struct {
	GameID    string
	Mode      string
	WhiteName string
	BlackName string
	// Result is "white", "black", "draw", or "" when the game was abandoned.
	Result    string
	Method    string
	PGN       string
	Moves     []ledger.MoveRecord
	StartedAt time.Time
	EndedAt   time.Time
}

// Repository stores finished games.
type Repository interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, gameID string) (*Record, error)
	Recent(ctx context.Context, limit int) ([]*Record, error)
}

// Finished describes a game at the moment it ends.
type Finished struct {
	Mode      string
	WhiteName string
	BlackName string
	Result    string
	Method    string
	Moves     []ledger.MoveRecord
	StartedAt time.Time
	EndedAt   time.Time
}

// NewRecord assigns a game id and renders the PGN.
func NewRecord(f Finished) *Record {
	ended := f.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	started := f.StartedAt
	if started.IsZero() || started.After(ended) {
		started = ended
	}
	white, black := nameOr(f.WhiteName, "White"), nameOr(f.BlackName, "Black")
	eco, openingName := bot.Opening(ledger.HalfMovesOf(f.Moves))
	return &Record{
		GameID:    uuid.NewString(),
		Mode:      f.Mode,
		WhiteName: white,
		BlackName: black,
		Result:    f.Result,
		Method:    f.Method,
		PGN: ledger.PGN(f.Moves, ledger.PGNHeaders{
			Event:       "Live Session (" + f.Mode + ")",
			Date:        started,
			White:       white,
			Black:       black,
			Termination: f.Method,
			ECO:         eco,
			Opening:     openingName,
		}, f.Result),
		Moves:     append([]ledger.MoveRecord(nil), f.Moves...),
		StartedAt: started,
		EndedAt:   ended,
	}
}

func nameOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
