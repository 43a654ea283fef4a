package ledger

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, "test:moves"), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()
	l := New(s, nil)

	for _, step := range []struct {
		color Color
		move  string
	}{{White, "e4"}, {Black, "e5"}, {White, "Nf3"}} {
		if _, err := l.Apply(ctx, step.color, step.move); err != nil {
			t.Fatalf("Apply %s %s: %v", step.color, step.move, err)
		}
	}

	fresh := New(s, nil)
	if err := fresh.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	snap := fresh.Snapshot()
	if len(snap) != 2 || snap[0] != (MoveRecord{1, "e4", "e5"}) || snap[1] != (MoveRecord{2, "Nf3", ""}) {
		t.Fatalf("unexpected restored snapshot %+v", snap)
	}
}

func TestRedisStoreConflicts(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	if err := s.SetBlack(ctx, 1, "e5"); !errors.Is(err, ErrConflict) {
		t.Fatalf("set black on empty log: expected ErrConflict, got %v", err)
	}
	if err := s.Append(ctx, MoveRecord{MoveNumber: 1, WhiteHalf: "e4"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(ctx, MoveRecord{MoveNumber: 2, WhiteHalf: "d4"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("append over incomplete record: expected ErrConflict, got %v", err)
	}
	if err := s.SetBlack(ctx, 1, "e5"); err != nil {
		t.Fatalf("SetBlack: %v", err)
	}
	if err := s.SetBlack(ctx, 1, "c5"); !errors.Is(err, ErrConflict) {
		t.Fatalf("second black half: expected ErrConflict, got %v", err)
	}
}

func TestRedisStoreClear(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()
	_ = s.Append(ctx, MoveRecord{MoveNumber: 1, WhiteHalf: "e4"})
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if mr.Exists("test:moves") {
		t.Fatalf("list key still present after Clear")
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
	recs, err := s.Load(ctx)
	if err != nil || len(recs) != 0 {
		t.Fatalf("expected empty log, got %+v err=%v", recs, err)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	s, mr := newTestRedisStore(t)
	mr.Close()
	l := New(s, nil)
	if _, err := l.ApplyWhite(context.Background(), "e4"); !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore with redis down, got %v", err)
	}
	if l.Len() != 0 {
		t.Fatalf("ledger mutated while store unavailable")
	}
}
