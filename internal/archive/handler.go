package archive

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/park285/Cheese-session-server/internal/obslog"
	"go.uber.org/zap"
)

const maxListLimit = 100

// Summary is the JSON view of an archived game.
type Summary struct {
	GameID    string    `json:"gameId"`
	Mode      string    `json:"mode"`
	White     string    `json:"white"`
	Black     string    `json:"black"`
	Result    string    `json:"result"`
	Method    string    `json:"method"`
	PGN       string    `json:"pgn"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
}

func summaryOf(rec *Record) Summary {
	return Summary{
		GameID:    rec.GameID,
		Mode:      rec.Mode,
		White:     rec.WhiteName,
		Black:     rec.BlackName,
		Result:    rec.Result,
		Method:    rec.Method,
		PGN:       rec.PGN,
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
	}
}

// Handler serves GET /games?limit=N (newest first) and GET /games/{id}.
// An id ending in ".pgn" answers the bare PGN text.
func Handler(repo Repository, logger *zap.Logger) http.Handler {
	logger = obslog.Or(logger)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/games"), "/")
		if id == "" {
			listGames(w, r, repo, logger)
			return
		}
		asPGN := strings.HasSuffix(id, ".pgn")
		rec, err := repo.Get(r.Context(), strings.TrimSuffix(id, ".pgn"))
		switch {
		case errors.Is(err, ErrNotFound):
			http.Error(w, "game not found", http.StatusNotFound)
			return
		case err != nil:
			logger.Error("archive_read_error", zap.String("game_id", id), zap.Error(err))
			http.Error(w, "archive unavailable", http.StatusServiceUnavailable)
			return
		}
		if asPGN {
			w.Header().Set("Content-Type", "application/x-chess-pgn")
			_, _ = w.Write([]byte(rec.PGN))
			return
		}
		writeJSON(w, summaryOf(rec))
	})
}

func listGames(w http.ResponseWriter, r *http.Request, repo Repository, logger *zap.Logger) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	recs, err := repo.Recent(r.Context(), limit)
	if err != nil {
		logger.Error("archive_read_error", zap.Error(err))
		http.Error(w, "archive unavailable", http.StatusServiceUnavailable)
		return
	}
	out := make([]Summary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, summaryOf(rec))
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(v)
}
