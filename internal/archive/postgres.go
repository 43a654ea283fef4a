package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/park285/Cheese-session-server/internal/ledger"
)

// PostgresRepository writes to the finished_games table.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository { return &PostgresRepository{db: db} }

// Save upserts by game id.
func (r *PostgresRepository) Save(ctx context.Context, rec *Record) error {
	if r == nil || r.db == nil || rec == nil {
		return nil
	}
	moves, err := json.Marshal(rec.Moves)
	if err != nil {
		return fmt.Errorf("marshal moves: %w", err)
	}
	const q = `INSERT INTO finished_games (
        game_id, mode, white_name, black_name, result, method, pgn, moves, started_at, ended_at
      ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
      ON CONFLICT (game_id) DO UPDATE SET
        mode=EXCLUDED.mode,
        white_name=EXCLUDED.white_name,
        black_name=EXCLUDED.black_name,
        result=EXCLUDED.result,
        method=EXCLUDED.method,
        pgn=EXCLUDED.pgn,
        moves=EXCLUDED.moves,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at`
	if _, err := r.db.ExecContext(ctx, q,
		rec.GameID, rec.Mode, rec.WhiteName, rec.BlackName, rec.Result, rec.Method,
		rec.PGN, moves, rec.StartedAt, rec.EndedAt,
	); err != nil {
		return fmt.Errorf("upsert finished_games: %w", err)
	}
	return nil
}

const selectColumns = `SELECT game_id, mode, white_name, black_name, result, method, pgn, moves, started_at, ended_at FROM finished_games`

func (r *PostgresRepository) Get(ctx context.Context, gameID string) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, selectColumns+` WHERE game_id = $1`, gameID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY ended_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select finished_games: %w", err)
	}
	defer rows.Close()
	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec   Record
		moves []byte
	)
	if err := row.Scan(&rec.GameID, &rec.Mode, &rec.WhiteName, &rec.BlackName, &rec.Result,
		&rec.Method, &rec.PGN, &moves, &rec.StartedAt, &rec.EndedAt); err != nil {
		return nil, err
	}
	var list []ledger.MoveRecord
	if len(moves) > 0 {
		if err := json.Unmarshal(moves, &list); err != nil {
			return nil, fmt.Errorf("decode moves: %w", err)
		}
	}
	rec.Moves = list
	return &rec, nil
}
