package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Color identifies the side a half-move belongs to.
type Color string

const (
	None  Color = ""
	White Color = "white"
	Black Color = "black"
)

// Opposite returns the other side; None stays None.
func (c Color) Opposite() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	default:
		return None
	}
}

// MoveRecord is one numbered move pair. Empty halves are encoded as JSON null,
// matching the current_game table columns.
type MoveRecord struct {
	MoveNumber int
	WhiteHalf  string
	BlackHalf  string
}

// Complete reports whether both halves are filled.
func (r MoveRecord) Complete() bool { return r.WhiteHalf != "" && r.BlackHalf != "" }

type moveRecordJSON struct {
	Move  int     `json:"move"`
	White *string `json:"white_halfmove"`
	Black *string `json:"black_halfmove"`
}

func (r MoveRecord) MarshalJSON() ([]byte, error) {
	out := moveRecordJSON{Move: r.MoveNumber}
	if r.WhiteHalf != "" {
		w := r.WhiteHalf
		out.White = &w
	}
	if r.BlackHalf != "" {
		b := r.BlackHalf
		out.Black = &b
	}
	return json.Marshal(out)
}

func (r *MoveRecord) UnmarshalJSON(b []byte) error {
	var in moveRecordJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	r.MoveNumber = in.Move
	r.WhiteHalf, r.BlackHalf = "", ""
	if in.White != nil {
		r.WhiteHalf = *in.White
	}
	if in.Black != nil {
		r.BlackHalf = *in.Black
	}
	return nil
}

var (
	ErrOutOfTurn = errors.New("move out of turn")
	ErrEmptyMove = errors.New("empty move")
	ErrStore     = errors.New("move store failure")
	// ErrConflict is returned by stores when the persisted log no longer matches the expected shape.
	ErrConflict = errors.New("move store conflict")
)

// StoreError wraps a failed persistence operation. errors.Is(err, ErrStore) holds for it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("ledger %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }
func (e *StoreError) Is(target error) bool { return target == ErrStore }
