package bot

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

var (
	// ErrUnplayable means the recorded half-moves do not replay as a legal game.
	ErrUnplayable = errors.New("recorded moves cannot be replayed")
	ErrNoMoves    = errors.New("no legal moves in position")
)

// Result is one bot move and the position it leaves behind.
type Result struct {
	SAN string
	// Outcome is "white", "black", "draw", or "" while the game goes on.
	Outcome string
	Method  string
}

// Finished reports whether the move ended the game.
func (r Result) Finished() bool { return r.Outcome != "" }

// RandomMover plays a uniformly random legal move.
type RandomMover struct {
	pick func(n int) int
}

func NewRandomMover() *RandomMover { return &RandomMover{pick: rand.IntN} }

// Move replays the half-moves and answers for the side to move.
func (m *RandomMover) Move(halfMoves []string) (Result, error) {
	game, err := replay(halfMoves)
	if err != nil {
		return Result{}, err
	}
	if game.Outcome() != nchess.NoOutcome {
		return Result{}, ErrNoMoves
	}
	cands := candidates(game)
	if len(cands) == 0 {
		return Result{}, ErrNoMoves
	}
	san := cands[m.pick(len(cands))]
	if err := game.PushNotationMove(san, nchess.AlgebraicNotation{}, nil); err != nil {
		return Result{}, fmt.Errorf("play %s: %w", san, err)
	}
	outcome, method := outcomeOf(game)
	return Result{SAN: san, Outcome: outcome, Method: method}, nil
}

// Candidates lists the legal moves in SAN for the position after halfMoves.
func Candidates(halfMoves []string) ([]string, error) {
	game, err := replay(halfMoves)
	if err != nil {
		return nil, err
	}
	return candidates(game), nil
}

// Evaluate reports the outcome of the position after halfMoves.
func Evaluate(halfMoves []string) (outcome, method string, err error) {
	game, err := replay(halfMoves)
	if err != nil {
		return "", "", err
	}
	outcome, method = outcomeOf(game)
	return outcome, method, nil
}

// Opening names the deepest ECO line the half-moves follow. Both values are empty
// when the moves do not replay or match no known line.
func Opening(halfMoves []string) (code, title string) {
	game, err := replay(halfMoves)
	if err != nil {
		return "", ""
	}
	book := opening.NewBookECO()
	if book == nil {
		return "", ""
	}
	if eco := book.Find(game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}

// Replay rebuilds the game from recorded half-moves, SAN first with a UCI fallback per ply.
func Replay(halfMoves []string) (*nchess.Game, error) { return replay(halfMoves) }

func replay(halfMoves []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	for i, raw := range halfMoves {
		mv := strings.TrimSpace(raw)
		if err := game.PushNotationMove(mv, nchess.AlgebraicNotation{}, nil); err == nil {
			continue
		}
		if err := game.PushNotationMove(strings.ToLower(mv), nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("%w: ply %d %q", ErrUnplayable, i+1, raw)
		}
	}
	return game, nil
}

func candidates(game *nchess.Game) []string {
	pos := game.Position()
	enc := nchess.AlgebraicNotation{}
	moves := game.ValidMoves()
	out := make([]string, 0, len(moves))
	for i := range moves {
		out = append(out, enc.Encode(pos, &moves[i]))
	}
	return out
}

func outcomeOf(game *nchess.Game) (string, string) {
	method := strings.ToLower(game.Method().String())
	switch game.Outcome() {
	case nchess.WhiteWon:
		return "white", method
	case nchess.BlackWon:
		return "black", method
	case nchess.Draw:
		return "draw", method
	default:
		return "", ""
	}
}
