package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the log as a Redis list of JSON records, index i holding move i+1.
// Append and SetBlack run under WATCH so a concurrent writer aborts the transaction.
type RedisStore struct {
	rdb *redis.Client
	key string
}

func NewRedisStore(rdb *redis.Client, key string) *RedisStore {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "session:current_game"
	}
	return &RedisStore{rdb: rdb, key: key}
}

func (s *RedisStore) Load(ctx context.Context) ([]MoveRecord, error) {
	raws, err := s.rdb.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]MoveRecord, 0, len(raws))
	for i, raw := range raws {
		var rec MoveRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Append(ctx context.Context, rec MoveRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.LLen(ctx, s.key).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if int(n)+1 != rec.MoveNumber {
			return fmt.Errorf("%w: append move %d onto %d records", ErrConflict, rec.MoveNumber, n)
		}
		if n > 0 {
			last, err := s.last(ctx, tx)
			if err != nil {
				return err
			}
			if !last.Complete() {
				return fmt.Errorf("%w: previous move %d incomplete", ErrConflict, last.MoveNumber)
			}
		}
		pipe := tx.TxPipeline()
		pipe.RPush(ctx, s.key, raw)
		_, err = pipe.Exec(ctx)
		return err
	}, s.key)
	return s.txErr(err)
}

func (s *RedisStore) SetBlack(ctx context.Context, moveNumber int, move string) error {
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		last, err := s.last(ctx, tx)
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: set black on empty log", ErrConflict)
		}
		if err != nil {
			return err
		}
		if last.MoveNumber != moveNumber || last.BlackHalf != "" {
			return fmt.Errorf("%w: set black on move %d", ErrConflict, moveNumber)
		}
		last.BlackHalf = move
		raw, err := json.Marshal(last)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.LSet(ctx, s.key, -1, raw)
		_, err = pipe.Exec(ctx)
		return err
	}, s.key)
	return s.txErr(err)
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}

func (s *RedisStore) last(ctx context.Context, tx *redis.Tx) (MoveRecord, error) {
	raw, err := tx.LIndex(ctx, s.key, -1).Bytes()
	if err != nil {
		return MoveRecord{}, err
	}
	var rec MoveRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return MoveRecord{}, fmt.Errorf("decode last record: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) txErr(err error) error {
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: concurrent write on %s", ErrConflict, s.key)
	}
	return err
}
