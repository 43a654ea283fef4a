package hub

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/park285/Cheese-session-server/internal/identity"
	"github.com/park285/Cheese-session-server/internal/obslog"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 << 10
)

type Options struct {
	// OriginPatterns are passed to websocket.AcceptOptions; empty means same-origin only.
	OriginPatterns []string
	SendBuffer     int
	VerifyTimeout  time.Duration
	PingInterval   time.Duration
}

// Server upgrades /ws requests, verifies the `token` query parameter, and pumps
// frames between the transport and the Dispatcher.
type Server struct {
	verifier   identity.Verifier
	dispatcher Dispatcher
	opts       Options
	logger     *zap.Logger
}

func NewServer(v identity.Verifier, d Dispatcher, opts Options, logger *zap.Logger) *Server {
	if opts.VerifyTimeout <= 0 {
		opts.VerifyTimeout = 5 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = pingPeriod
	}
	return &Server{verifier: v, dispatcher: d, opts: opts, logger: obslog.Or(logger)}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("token")
	adminReq, _ := strconv.ParseBool(q.Get("isAdmin"))

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.opts.OriginPatterns})
	if err != nil {
		s.logger.Warn("hub_accept_error", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	ws.SetReadLimit(maxMessageSize)

	vctx, cancel := context.WithTimeout(r.Context(), s.opts.VerifyTimeout)
	id, err := s.verifier.Verify(vctx, token)
	cancel()
	if err != nil {
		s.logger.Info("hub_unauthorized", zap.String("remote", r.RemoteAddr), zap.Error(err))
		_ = ws.Close(websocket.StatusPolicyViolation, "unauthorized")
		return
	}

	c := NewConn(id, adminReq, s.opts.SendBuffer)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(ctx, ws, c)
	}()

	s.dispatcher.Connect(c)
	s.readPump(ctx, ws, c)
	s.dispatcher.Disconnect(c)

	c.Close()
	<-writerDone
}

func (s *Server) readPump(ctx context.Context, ws *websocket.Conn, c *Conn) {
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if st := websocket.CloseStatus(err); st != websocket.StatusNormalClosure && st != websocket.StatusGoingAway &&
				!errors.Is(err, context.Canceled) && !c.Closed() {
				s.logger.Debug("hub_read_error", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			continue
		}
		if c.Closed() {
			return
		}
		s.dispatcher.Message(c, data)
	}
}

func (s *Server) writePump(ctx context.Context, ws *websocket.Conn, c *Conn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			s.flush(ctx, ws, c)
			_ = ws.Close(websocket.StatusGoingAway, "connection closed")
			return
		case b := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := ws.Write(wctx, websocket.MessageText, b)
			cancel()
			if err != nil {
				s.logger.Debug("hub_write_error", zap.String("conn_id", c.id), zap.Error(err))
				c.Close()
				_ = ws.CloseNow()
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeWait)
			err := ws.Ping(pctx)
			cancel()
			if err != nil {
				c.Close()
				_ = ws.CloseNow()
				return
			}
		}
	}
}

// flush writes frames queued before the close, without waiting for new ones.
func (s *Server) flush(ctx context.Context, ws *websocket.Conn, c *Conn) {
	fctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	for {
		select {
		case b := <-c.send:
			if err := ws.Write(fctx, websocket.MessageText, b); err != nil {
				return
			}
		default:
			return
		}
	}
}
