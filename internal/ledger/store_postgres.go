package ledger

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore keeps the log in the current_game table (move SERIAL PK, white_halfmove, black_halfmove).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Load(ctx context.Context) ([]MoveRecord, error) {
	const query = `SELECT move, white_halfmove, black_halfmove FROM current_game ORDER BY move ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select current_game: %w", err)
	}
	defer rows.Close()

	var out []MoveRecord
	for rows.Next() {
		var (
			rec          MoveRecord
			white, black sql.NullString
		)
		if err := rows.Scan(&rec.MoveNumber, &white, &black); err != nil {
			return nil, fmt.Errorf("scan current_game: %w", err)
		}
		rec.WhiteHalf = white.String
		rec.BlackHalf = black.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Append inserts with an explicit move number so a failed insert never burns a sequence value
// into the numbering. The shape check and insert share one transaction.
func (s *PostgresStore) Append(ctx context.Context, rec MoveRecord) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var (
		lastMove  sql.NullInt64
		lastBlack sql.NullString
	)
	err = tx.QueryRowContext(ctx,
		`SELECT move, black_halfmove FROM current_game ORDER BY move DESC LIMIT 1 FOR UPDATE`,
	).Scan(&lastMove, &lastBlack)
	switch {
	case err == sql.ErrNoRows:
		err = nil
		if rec.MoveNumber != 1 {
			return fmt.Errorf("%w: append move %d onto empty log", ErrConflict, rec.MoveNumber)
		}
	case err != nil:
		return fmt.Errorf("select last move: %w", err)
	default:
		if int(lastMove.Int64)+1 != rec.MoveNumber || !lastBlack.Valid {
			return fmt.Errorf("%w: append move %d after %d", ErrConflict, rec.MoveNumber, lastMove.Int64)
		}
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO current_game (move, white_halfmove) VALUES ($1, $2)`,
		rec.MoveNumber, rec.WhiteHalf,
	); err != nil {
		return fmt.Errorf("insert current_game: %w", err)
	}
	// keep the serial in step with explicit numbering
	if _, err = tx.ExecContext(ctx,
		`SELECT setval(pg_get_serial_sequence('current_game', 'move'), $1)`, rec.MoveNumber,
	); err != nil {
		return fmt.Errorf("sync sequence: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetBlack(ctx context.Context, moveNumber int, move string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE current_game SET black_halfmove = $1
		 WHERE move = $2 AND black_halfmove IS NULL
		   AND move = (SELECT MAX(move) FROM current_game)`,
		move, moveNumber,
	)
	if err != nil {
		return fmt.Errorf("update current_game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("%w: set black on move %d", ErrConflict, moveNumber)
	}
	return nil
}

// Clear deletes every record and restarts numbering at 1.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `TRUNCATE TABLE current_game RESTART IDENTITY`); err != nil {
		return fmt.Errorf("truncate current_game: %w", err)
	}
	return nil
}
