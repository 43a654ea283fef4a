package board

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/park285/Cheese-session-server/internal/bot"
	"github.com/park285/Cheese-session-server/internal/obslog"
	"go.uber.org/zap"
)

// Source returns the current plies in play order.
type Source func(ctx context.Context) ([]string, error)

// Handler serves GET /board.png?size=64&flip=true for the current position.
func Handler(src Source, logger *zap.Logger) http.Handler {
	logger = obslog.Or(logger)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		opts := Options{}
		if v := q.Get("size"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < minSquareSize || n > maxSquareSize {
				http.Error(w, "invalid size", http.StatusBadRequest)
				return
			}
			opts.SquareSize = n
		}
		opts.Flip, _ = strconv.ParseBool(q.Get("flip"))

		plies, err := src(r.Context())
		if err != nil {
			logger.Warn("board_source_error", zap.Error(err))
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		png, err := Render(plies, opts)
		switch {
		case errors.Is(err, bot.ErrUnplayable):
			// the ledger accepts any text, so not every session is a playable position
			http.Error(w, "position unavailable", http.StatusConflict)
			return
		case err != nil:
			logger.Error("board_render_error", zap.Int("plies", len(plies)), zap.Error(err))
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))
		_, _ = w.Write(png)
	})
}
