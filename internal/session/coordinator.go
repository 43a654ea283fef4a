package session

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/park285/Cheese-session-server/internal/archive"
	"github.com/park285/Cheese-session-server/internal/bot"
	"github.com/park285/Cheese-session-server/internal/gamemode"
	"github.com/park285/Cheese-session-server/internal/hub"
	"github.com/park285/Cheese-session-server/internal/ledger"
	"github.com/park285/Cheese-session-server/internal/msgcat"
	"github.com/park285/Cheese-session-server/internal/obslog"
	"github.com/park285/Cheese-session-server/internal/roles"
	"go.uber.org/zap"
)

// Mover picks a move for a bot-controlled side.
type Mover interface {
	Move(halfMoves []string) (bot.Result, error)
}

type Options struct {
	// Mover is nil when bots are disabled.
	Mover        Mover
	BotMoveDelay time.Duration
	// Archive is nil when finished games are not kept.
	Archive     archive.Repository
	EventBuffer int
}

type eventKind int

const (
	evConnect eventKind = iota
	evMessage
	evDisconnect
	evBotMove
	evCall
)

type event struct {
	kind eventKind
	conn *hub.Conn
	raw  []byte
	bot  botMove
	call func()
}

type botMove struct {
	gen    uint64
	color  ledger.Color
	result bot.Result
	err    error
}

// Coordinator is the session state machine. Run owns every piece of session state;
// all connects, disconnects, commands, and bot moves are applied one at a time in
// arrival order, and every broadcast is queued before the next event is taken.
type Coordinator struct {
	events chan event
	done   chan struct{}

	hub    *hub.Hub
	roles  *roles.Registry
	cfg    *gamemode.Configurator
	ledger *ledger.Ledger
	cat    *msgcat.Catalog
	opts   Options
	logger *zap.Logger

	// gen changes whenever a game starts or ends; bot moves from another generation are dropped
	gen       uint64
	startedAt time.Time
}

func New(l *ledger.Ledger, cat *msgcat.Catalog, opts Options, logger *zap.Logger) *Coordinator {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	logger = obslog.Or(logger)
	return &Coordinator{
		events: make(chan event, opts.EventBuffer),
		done:   make(chan struct{}),
		hub:    hub.New(logger),
		roles:  roles.New(),
		cfg:    gamemode.New(),
		ledger: l,
		cat:    cat,
		opts:   opts,
		logger: logger,
	}
}

// Run restores the persisted ledger and processes events until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)
	if err := c.ledger.Restore(ctx); err != nil {
		c.logger.Warn("session_restore_failed", zap.Error(err))
	}
	c.logger.Info("session_loop_start", zap.Int("records", c.ledger.Len()))
	for {
		select {
		case <-ctx.Done():
			c.hub.CloseAll()
			c.logger.Info("session_loop_stop", zap.Int("connections", c.hub.Len()))
			return ctx.Err()
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

// Connect, Message, and Disconnect implement hub.Dispatcher.
func (c *Coordinator) Connect(conn *hub.Conn) { c.submit(event{kind: evConnect, conn: conn}) }
func (c *Coordinator) Message(conn *hub.Conn, raw []byte) {
	c.submit(event{kind: evMessage, conn: conn, raw: raw})
}
func (c *Coordinator) Disconnect(conn *hub.Conn) { c.submit(event{kind: evDisconnect, conn: conn}) }

// Do runs fn on the session loop and waits for it.
func (c *Coordinator) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	ev := event{kind: evCall, call: func() { fn(); close(finished) }}
	select {
	case c.events <- ev:
	case <-c.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-c.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) submit(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Coordinator) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evConnect:
		c.onConnect(ev.conn)
	case evMessage:
		c.onMessage(ctx, ev.conn, ev.raw)
	case evDisconnect:
		c.onDisconnect(ev.conn)
	case evBotMove:
		c.onBotMove(ctx, ev.bot)
	case evCall:
		ev.call()
	}
}

func (c *Coordinator) onConnect(conn *hub.Conn) {
	if conn.Closed() {
		return
	}
	id := conn.Identity()
	c.hub.Add(conn)
	asg := c.roles.AssignOnConnect(roles.Member{ConnID: conn.ID(), IdentityID: id.ID, Name: id.DisplayName},
		c.cfg.Mode(), c.cfg.Ongoing())
	c.logger.Info("session_connect",
		zap.String("conn_id", conn.ID()),
		zap.String("username", id.DisplayName),
		zap.String("role", string(asg.Role)),
		zap.String("seat", string(asg.Seat)),
		zap.Bool("admin_requested", conn.AdminRequested()),
		zap.Int("connections", c.hub.Len()),
	)

	c.sendRole(conn.ID())
	c.hub.Send(conn.ID(), gameState(c.ledger.Snapshot()))
	c.hub.Broadcast(UserMessage{Type: msgUserConnected, Username: id.DisplayName}, conn.ID())
	c.hub.Send(conn.ID(), PlayerListMessage{Type: msgPlayerList, Clients: c.roles.Names()})
	c.sendInfo(conn.ID(), "info.client_number", map[string]any{
		"Number": strconv.Itoa(c.hub.Len()),
		"ConnID": conn.ID(),
	})
	if asg.Reclaimed {
		c.broadcastInfo("info.seat_reclaimed", map[string]any{"Username": id.DisplayName, "Role": string(asg.Seat)}, conn.ID())
	}
}

func (c *Coordinator) onDisconnect(conn *hub.Conn) {
	if _, ok := c.hub.Remove(conn.ID()); !ok {
		return
	}
	rel, ok := c.roles.ReleaseOnDisconnect(conn.ID(), c.cfg.Ongoing())
	if !ok {
		return
	}
	c.logger.Info("session_disconnect",
		zap.String("conn_id", conn.ID()),
		zap.String("username", rel.Member.Name),
		zap.Bool("was_admin", rel.WasAdmin),
		zap.String("vacated_seat", string(rel.VacatedSeat)),
		zap.String("new_admin", rel.NewAdmin),
		zap.Int("connections", c.hub.Len()),
	)
	c.hub.Broadcast(UserMessage{Type: msgUserDisconnected, Username: rel.Member.Name})
	if rel.NewAdmin != "" {
		c.sendRole(rel.NewAdmin)
	}
	if rel.Reserved {
		c.broadcastInfo("info.seat_vacant", map[string]any{"Username": rel.Member.Name, "Role": string(rel.VacatedSeat)})
	}
}

func (c *Coordinator) onMessage(ctx context.Context, conn *hub.Conn, raw []byte) {
	if conn.Closed() {
		return
	}
	if _, ok := c.hub.Get(conn.ID()); !ok {
		return
	}
	cmd, err := ParseCommand(raw)
	if err != nil {
		c.reject(conn.ID(), commandName(err), err)
		return
	}
	if err := c.dispatch(ctx, conn.ID(), cmd); err != nil {
		c.reject(conn.ID(), cmd.Name(), err)
	}
}

func (c *Coordinator) dispatch(ctx context.Context, from string, cmd Command) error {
	switch cmd := cmd.(type) {
	case SetMode:
		return c.setMode(from, cmd)
	case SetColor:
		return c.setColor(from, cmd)
	case StartGame:
		return c.startGame(ctx, from)
	case TransferAdmin:
		return c.transferAdmin(from, cmd)
	case Move:
		return c.applyMove(ctx, from, cmd)
	case Reset:
		return c.reset(ctx, from)
	default:
		c.logger.Error("session_unhandled_command", zap.String("command", cmd.Name()))
		return ErrUnknownCommand
	}
}

func (c *Coordinator) requireAdmin(from string) error {
	if !c.roles.IsAdmin(from) {
		return roles.ErrNotAdmin
	}
	return nil
}

func (c *Coordinator) setMode(from string, cmd SetMode) error {
	if err := c.requireAdmin(from); err != nil {
		return err
	}
	if err := c.cfg.SetMode(cmd.Mode); err != nil {
		return err
	}
	changed := c.roles.ApplyMode(cmd.Mode)
	for _, id := range changed {
		c.sendRole(id)
	}
	c.logger.Info("session_set_mode", zap.String("mode", string(cmd.Mode)), zap.Strings("reseated", changed))
	return nil
}

func (c *Coordinator) setColor(from string, cmd SetColor) error {
	if err := c.requireAdmin(from); err != nil {
		return err
	}
	color, err := c.cfg.SetColor(cmd.Choice)
	if err != nil {
		return err
	}
	c.sendSeatRoles()
	c.logger.Info("session_set_color", zap.String("choice", string(cmd.Choice)), zap.String("player1_color", string(color)))
	return nil
}

func (c *Coordinator) startGame(ctx context.Context, from string) error {
	if err := c.requireAdmin(from); err != nil {
		return err
	}
	p1, p2 := c.roles.Occupied()
	if !c.cfg.IsReadyToStart(p1, p2) {
		return c.notReady(p1, p2)
	}
	if err := c.ledger.Reset(ctx); err != nil {
		return err
	}
	if err := c.cfg.Start(p1, p2); err != nil {
		return err
	}
	c.gen++
	c.startedAt = time.Now()
	c.roles.ClearReservations()
	c.logger.Info("session_game_started",
		zap.String("mode", string(c.cfg.Mode())),
		zap.String("player1_color", string(c.cfg.Player1Color())),
		zap.Uint64("generation", c.gen),
	)
	c.hub.Broadcast(GameStartedMessage{Type: msgGameStarted, Mode: string(c.cfg.Mode())})
	c.broadcastState()
	c.sendSeatRoles()
	c.scheduleBot()
	return nil
}

func (c *Coordinator) notReady(p1, p2 bool) error {
	switch {
	case c.cfg.Ongoing():
		return &notReadyError{reason: "a game is already in progress"}
	case c.cfg.Mode() == gamemode.Unset:
		return &notReadyError{reason: "no game mode selected"}
	case !p1:
		return &notReadyError{reason: "player 1 seat is empty"}
	case c.cfg.Mode().NeedsPlayer2() && !p2:
		return &notReadyError{reason: "player 2 seat is empty"}
	default:
		return ErrNotReady
	}
}

func (c *Coordinator) transferAdmin(from string, cmd TransferAdmin) error {
	to, err := c.roles.TransferAdmin(from, cmd.Target)
	if err != nil {
		return err
	}
	if to == from {
		c.sendRole(from)
		return nil
	}
	c.sendRole(from)
	c.sendRole(to)
	if m, ok := c.roles.Member(to); ok {
		c.broadcastInfo("info.admin_transferred", map[string]any{"Username": m.Name}, to)
	}
	c.logger.Info("session_transfer_admin", zap.String("from", from), zap.String("to", to))
	return nil
}

func (c *Coordinator) applyMove(ctx context.Context, from string, cmd Move) error {
	seat := c.roles.Seat(from)
	if seat == roles.Observer {
		return ErrWrongRole
	}
	if !c.cfg.Ongoing() {
		return ErrNotOngoing
	}
	if c.seatColor(seat) != cmd.Color || c.cfg.IsBotColor(cmd.Color) {
		return ErrWrongRole
	}
	if turn := c.ledger.CurrentTurn(); turn != cmd.Color {
		return &outOfTurnError{turn: turn, empty: c.ledger.Len() == 0}
	}
	rec, err := c.ledger.Apply(ctx, cmd.Color, cmd.Move)
	if err != nil {
		return err
	}
	c.logger.Info("session_move",
		zap.String("conn_id", from),
		zap.String("color", string(cmd.Color)),
		zap.Int("move_number", rec.MoveNumber),
		zap.String("move", cmd.Move),
	)
	c.broadcastState()
	c.scheduleBot()
	return nil
}

func (c *Coordinator) reset(ctx context.Context, from string) error {
	if err := c.requireAdmin(from); err != nil {
		return err
	}
	wasOngoing := c.cfg.Ongoing()
	snapshot := c.ledger.Snapshot()
	if err := c.ledger.Reset(ctx); err != nil {
		return err
	}
	c.cfg.End()
	c.gen++
	c.roles.ClearReservations()
	c.logger.Info("session_reset", zap.Bool("was_ongoing", wasOngoing), zap.Int("records", len(snapshot)))
	if wasOngoing {
		c.archiveGame(ctx, snapshot, "", "reset")
	}
	c.broadcastState()
	c.broadcastInfo("info.game_reset", nil)
	return nil
}

// scheduleBot queues a bot move when the side to move is bot-controlled. The move is
// computed off the loop and re-enters it as an event.
func (c *Coordinator) scheduleBot() {
	if c.opts.Mover == nil || !c.cfg.Ongoing() {
		return
	}
	turn := c.ledger.CurrentTurn()
	if !c.cfg.IsBotColor(turn) {
		return
	}
	gen, plies, delay, mover := c.gen, c.ledger.HalfMoves(), c.opts.BotMoveDelay, c.opts.Mover
	go func() {
		if delay > 0 {
			t := time.NewTimer(delay)
			defer t.Stop()
			select {
			case <-t.C:
			case <-c.done:
				return
			}
		}
		res, err := mover.Move(plies)
		c.submit(event{kind: evBotMove, bot: botMove{gen: gen, color: turn, result: res, err: err}})
	}()
}

func (c *Coordinator) onBotMove(ctx context.Context, mv botMove) {
	if mv.gen != c.gen || !c.cfg.Ongoing() || c.ledger.CurrentTurn() != mv.color {
		c.logger.Debug("bot_move_stale", zap.Uint64("generation", mv.gen), zap.Uint64("current", c.gen))
		return
	}
	if errors.Is(mv.err, bot.ErrNoMoves) {
		// the human move before this one may have ended the game
		if outcome, method, err := bot.Evaluate(c.ledger.HalfMoves()); err == nil && outcome != "" {
			c.endGame(ctx, outcome, method)
			return
		}
	}
	if errors.Is(mv.err, bot.ErrUnplayable) {
		c.logger.Warn("bot_unplayable", zap.String("color", string(mv.color)), zap.Error(mv.err))
		c.broadcastInfo("info.bot_unplayable", map[string]any{"Color": string(mv.color)})
		c.endGame(ctx, "", methodAbandoned)
		return
	}
	if mv.err != nil {
		c.logger.Warn("bot_idle", zap.String("color", string(mv.color)), zap.Error(mv.err))
		return
	}
	rec, err := c.ledger.Apply(ctx, mv.color, mv.result.SAN)
	if err != nil {
		c.logger.Error("bot_move_rejected", zap.String("move", mv.result.SAN), zap.Error(err))
		return
	}
	c.logger.Info("session_move",
		zap.String("conn_id", "bot"),
		zap.String("color", string(mv.color)),
		zap.Int("move_number", rec.MoveNumber),
		zap.String("move", mv.result.SAN),
	)
	c.broadcastState()
	if mv.result.Finished() {
		c.endGame(ctx, mv.result.Outcome, mv.result.Method)
		return
	}
	c.scheduleBot()
}

const methodAbandoned = "abandoned"

// endGame closes a game that reached a terminal position. An empty result abandons it.
func (c *Coordinator) endGame(ctx context.Context, result, method string) {
	snapshot := c.ledger.Snapshot()
	c.cfg.End()
	c.gen++
	c.roles.ClearReservations()
	c.logger.Info("session_game_over", zap.String("result", result), zap.String("method", method))
	if result == "" {
		c.broadcastInfo("info.game_abandoned", map[string]any{"Method": method})
	} else {
		c.broadcastInfo("info.game_over", map[string]any{"Result": result, "Method": method})
	}
	c.archiveGame(ctx, snapshot, result, method)
}

func (c *Coordinator) archiveGame(ctx context.Context, moves []ledger.MoveRecord, result, method string) {
	if c.opts.Archive == nil || len(moves) == 0 {
		return
	}
	rec := archive.NewRecord(archive.Finished{
		Mode:      string(c.cfg.Mode()),
		WhiteName: c.sideName(ledger.White),
		BlackName: c.sideName(ledger.Black),
		Result:    result,
		Method:    method,
		Moves:     moves,
		StartedAt: c.startedAt,
		EndedAt:   time.Now(),
	})
	actx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.opts.Archive.Save(actx, rec); err != nil {
		c.logger.Error("archive_save_failed", zap.String("game_id", rec.GameID), zap.Error(err))
		return
	}
	c.logger.Info("archive_saved", zap.String("game_id", rec.GameID), zap.Int("records", len(moves)))
}

func (c *Coordinator) sideName(color ledger.Color) string {
	if c.cfg.IsBotColor(color) {
		return "Bot"
	}
	for _, seat := range []roles.Role{roles.Player1, roles.Player2} {
		if c.seatColor(seat) != color {
			continue
		}
		if m, ok := c.roles.Member(c.roles.Holder(seat)); ok {
			return m.Name
		}
	}
	return ""
}

func (c *Coordinator) seatColor(seat roles.Role) ledger.Color {
	switch seat {
	case roles.Player1:
		return c.cfg.Player1Color()
	case roles.Player2:
		if c.cfg.Player1Color() == ledger.None {
			return ledger.None
		}
		return c.cfg.Player2Color()
	default:
		return ledger.None
	}
}

func (c *Coordinator) sendRole(id string) {
	seat := c.roles.Seat(id)
	msg := RoleMessage{Type: msgRole, Role: string(c.roles.Primary(id))}
	if seat != roles.Observer {
		msg.Seat = string(seat)
		msg.Color = string(c.seatColor(seat))
	}
	c.hub.Send(id, msg)
}

func (c *Coordinator) sendSeatRoles() {
	for _, seat := range []roles.Role{roles.Player1, roles.Player2} {
		if id := c.roles.Holder(seat); id != "" {
			c.sendRole(id)
		}
	}
}

func (c *Coordinator) broadcastState() { c.hub.Broadcast(gameState(c.ledger.Snapshot())) }

func (c *Coordinator) sendInfo(id, key string, data map[string]any) {
	c.hub.Send(id, TextMessage{Type: msgInfo, Message: c.cat.Text(key, data)})
}

func (c *Coordinator) broadcastInfo(key string, data map[string]any, except ...string) {
	c.hub.Broadcast(TextMessage{Type: msgInfo, Message: c.cat.Text(key, data)}, except...)
}

func (c *Coordinator) reject(id, command string, err error) {
	key, data := errorKey(err, command)
	lvl := c.logger.Debug
	if errors.Is(err, ErrStore) {
		lvl = c.logger.Warn
	}
	lvl("session_reject", zap.String("conn_id", id), zap.String("command", command), zap.String("reason", key), zap.Error(err))
	c.hub.Send(id, TextMessage{Type: msgError, Message: c.cat.Text(key, data)})
}

// Snapshot is a read-only view of the session for health and tooling.
type Snapshot struct {
	Mode        string              `json:"mode"`
	Phase       string              `json:"phase"`
	Ongoing     bool                `json:"ongoing"`
	Turn        string              `json:"turn"`
	Connections int                 `json:"connections"`
	Records     []ledger.MoveRecord `json:"records"`
}

// State reads the session on the loop.
func (c *Coordinator) State(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := c.Do(ctx, func() {
		p1, p2 := c.roles.Occupied()
		turn := ledger.None
		if c.cfg.Ongoing() {
			turn = c.ledger.CurrentTurn()
		}
		s = Snapshot{
			Mode:        string(c.cfg.Mode()),
			Phase:       string(c.cfg.Phase(p1, p2)),
			Ongoing:     c.cfg.Ongoing(),
			Turn:        string(turn),
			Connections: c.hub.Len(),
			Records:     c.ledger.Snapshot(),
		}
	})
	return s, err
}
