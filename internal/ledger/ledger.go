package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/park285/Cheese-session-server/internal/obslog"
	"go.uber.org/zap"
)

const storeOpTimeout = 5 * time.Second

// Ledger is the in-memory mirror of the persisted move log.
//
// Every mutation is written to the Store first and only committed to memory when the
// write succeeds, so both views never diverge. A Ledger is owned by the session loop
// and is not safe for concurrent use.
type Ledger struct {
	store   Store
	records []MoveRecord
	logger  *zap.Logger
}

func New(store Store, logger *zap.Logger) *Ledger {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Ledger{store: store, logger: obslog.Or(logger)}
}

// Restore replaces the in-memory mirror with the persisted log.
func (l *Ledger) Restore(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()
	recs, err := l.store.Load(ctx)
	if err != nil {
		return &StoreError{Op: "load", Err: err}
	}
	l.records = recs
	l.logger.Info("ledger_restore", zap.Int("records", len(recs)))
	return nil
}

// CurrentTurn is Black while the last record waits for its black half, White otherwise.
func (l *Ledger) CurrentTurn() Color {
	n := len(l.records)
	if n > 0 && l.records[n-1].BlackHalf == "" {
		return Black
	}
	return White
}

// ApplyWhite appends a new record carrying the white half-move.
func (l *Ledger) ApplyWhite(ctx context.Context, move string) (MoveRecord, error) {
	move = strings.TrimSpace(move)
	if move == "" {
		return MoveRecord{}, ErrEmptyMove
	}
	if l.CurrentTurn() != White {
		return MoveRecord{}, ErrOutOfTurn
	}
	rec := MoveRecord{MoveNumber: len(l.records) + 1, WhiteHalf: move}

	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()
	if err := l.store.Append(ctx, rec); err != nil {
		l.logger.Error("ledger_store_error", zap.String("op", "append"), zap.Int("move", rec.MoveNumber), zap.Error(err))
		return MoveRecord{}, &StoreError{Op: "append", Err: err}
	}
	l.records = append(l.records, rec)
	return rec, nil
}

// ApplyBlack fills the black half of the last record.
func (l *Ledger) ApplyBlack(ctx context.Context, move string) (MoveRecord, error) {
	move = strings.TrimSpace(move)
	if move == "" {
		return MoveRecord{}, ErrEmptyMove
	}
	if len(l.records) == 0 || l.CurrentTurn() != Black {
		return MoveRecord{}, ErrOutOfTurn
	}
	last := l.records[len(l.records)-1]

	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()
	if err := l.store.SetBlack(ctx, last.MoveNumber, move); err != nil {
		l.logger.Error("ledger_store_error", zap.String("op", "set_black"), zap.Int("move", last.MoveNumber), zap.Error(err))
		return MoveRecord{}, &StoreError{Op: "set_black", Err: err}
	}
	last.BlackHalf = move
	l.records[len(l.records)-1] = last
	return last, nil
}

// Apply routes a half-move to the side given by color.
func (l *Ledger) Apply(ctx context.Context, color Color, move string) (MoveRecord, error) {
	switch color {
	case White:
		return l.ApplyWhite(ctx, move)
	case Black:
		return l.ApplyBlack(ctx, move)
	default:
		return MoveRecord{}, ErrOutOfTurn
	}
}

// Reset clears the log, in-flight halves included. Resetting an empty ledger is a no-op success.
func (l *Ledger) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()
	if err := l.store.Clear(ctx); err != nil {
		l.logger.Error("ledger_store_error", zap.String("op", "clear"), zap.Error(err))
		return &StoreError{Op: "clear", Err: err}
	}
	l.records = nil
	return nil
}

// Snapshot returns a copy of the committed records in move order.
func (l *Ledger) Snapshot() []MoveRecord {
	return append(make([]MoveRecord, 0, len(l.records)), l.records...)
}

func (l *Ledger) Len() int { return len(l.records) }

// HalfMoves returns the plies in play order: white, black, white, ...
func (l *Ledger) HalfMoves() []string { return HalfMovesOf(l.records) }

// HalfMovesOf flattens records into plies.
func HalfMovesOf(records []MoveRecord) []string {
	out := make([]string, 0, len(records)*2)
	for _, r := range records {
		out = append(out, r.WhiteHalf)
		if r.BlackHalf != "" {
			out = append(out, r.BlackHalf)
		}
	}
	return out
}
