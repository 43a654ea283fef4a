package bot

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestOpeningMoveIsLegal(t *testing.T) {
	m := &RandomMover{pick: func(int) int { return 0 }}
	res, err := m.Move(nil)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if res.SAN == "" || res.Finished() {
		t.Fatalf("unexpected opening result %+v", res)
	}
	if _, err := Candidates([]string{res.SAN}); err != nil {
		t.Fatalf("bot move %q does not replay: %v", res.SAN, err)
	}
}

func TestStartingPositionHasTwentyMoves(t *testing.T) {
	cands, err := Candidates(nil)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(cands) != 20 {
		t.Fatalf("expected 20 opening moves, got %d: %v", len(cands), cands)
	}
}

func TestCandidatesFollowPosition(t *testing.T) {
	cands, err := Candidates([]string{"e4", "f5"})
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if !slices.Contains(cands, "exf5") || slices.Contains(cands, "e4") {
		t.Fatalf("unexpected candidates %v", cands)
	}
	mated, err := Candidates([]string{"f3", "e5", "g4", "Qh4#"})
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(mated) != 0 {
		t.Fatalf("mated side has moves %v", mated)
	}
}

func TestReplayAcceptsUCI(t *testing.T) {
	if _, err := Candidates([]string{"e2e4", "e5", "g1f3"}); err != nil {
		t.Fatalf("mixed SAN/UCI replay: %v", err)
	}
	if _, err := Candidates([]string{"e4", "hello"}); !errors.Is(err, ErrUnplayable) {
		t.Fatalf("expected ErrUnplayable, got %v", err)
	}
}

func TestMateEndsGame(t *testing.T) {
	plies := []string{"f3", "e5", "g4"}
	cands, err := Candidates(plies)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	idx := -1
	for i, c := range cands {
		if c == "Qh4#" {
			idx = i
		}
	}
	if idx < 0 {
		t.Fatalf("Qh4# not among candidates %v", cands)
	}
	m := &RandomMover{pick: func(int) int { return idx }}
	res, err := m.Move(plies)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if res.SAN != "Qh4#" || res.Outcome != "black" || res.Method != "checkmate" {
		t.Fatalf("unexpected mate result %+v", res)
	}

	if _, err := m.Move(append(plies, "Qh4#")); !errors.Is(err, ErrNoMoves) {
		t.Fatalf("expected ErrNoMoves after mate, got %v", err)
	}
	outcome, _, err := Evaluate(append(plies, "Qh4#"))
	if err != nil || outcome != "black" {
		t.Fatalf("Evaluate = %q, %v", outcome, err)
	}
}

func TestOpeningNamesKnownLine(t *testing.T) {
	code, title := Opening([]string{"e4", "e5", "Nf3", "Nc6", "Bb5"})
	if !strings.HasPrefix(code, "C") || title == "" {
		t.Fatalf("unexpected opening %q %q", code, title)
	}
	if code, title := Opening([]string{"e4", "e4"}); code != "" || title != "" {
		t.Fatalf("unplayable moves should name no opening, got %q %q", code, title)
	}
}
