package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/Cheese-session-server/internal/archive"
	"github.com/park285/Cheese-session-server/internal/bot"
	"github.com/park285/Cheese-session-server/internal/hub"
	"github.com/park285/Cheese-session-server/internal/identity"
	"github.com/park285/Cheese-session-server/internal/ledger"
	"github.com/park285/Cheese-session-server/internal/msgcat"
)

type testSession struct {
	t     *testing.T
	co    *Coordinator
	store *flakyStore
}

// flakyStore fails appends while failAppend is set.
type flakyStore struct {
	*ledger.MemoryStore
	failAppend atomic.Bool
}

func (f *flakyStore) Append(ctx context.Context, rec ledger.MoveRecord) error {
	if f.failAppend.Load() {
		return fmt.Errorf("disk on fire")
	}
	return f.MemoryStore.Append(ctx, rec)
}

func newTestSession(t *testing.T, opts Options) *testSession {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	store := &flakyStore{MemoryStore: ledger.NewMemoryStore()}
	co := New(ledger.New(store, nil), cat, opts, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = co.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return &testSession{t: t, co: co, store: store}
}

// sync waits until every event submitted so far has been applied.
func (s *testSession) sync() {
	s.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.co.Do(ctx, func() {}); err != nil {
		s.t.Fatalf("sync: %v", err)
	}
}

type peer struct {
	t    *testing.T
	name string
	conn *hub.Conn
}

func (s *testSession) connect(name string) *peer {
	s.t.Helper()
	return s.connectAs(name, "uid-"+name)
}

func (s *testSession) connectAs(name, uid string) *peer {
	s.t.Helper()
	c := hub.NewConn(identity.Identity{ID: uid, DisplayName: name}, false, 128)
	s.co.Connect(c)
	s.sync()
	return &peer{t: s.t, name: name, conn: c}
}

func (s *testSession) disconnect(p *peer) {
	s.t.Helper()
	p.conn.Close()
	s.co.Disconnect(p.conn)
	s.sync()
}

func (s *testSession) send(p *peer, raw string) {
	s.t.Helper()
	s.co.Message(p.conn, []byte(raw))
	s.sync()
}

func (s *testSession) state() Snapshot {
	s.t.Helper()
	snap, err := s.co.State(context.Background())
	if err != nil {
		s.t.Fatalf("state: %v", err)
	}
	return snap
}

func (s *testSession) waitFor(desc string, ok func(Snapshot) bool) Snapshot {
	s.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		snap := s.state()
		if ok(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			s.t.Fatalf("timed out waiting for %s; last state %+v", desc, snap)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (p *peer) next() map[string]any {
	p.t.Helper()
	select {
	case b := <-p.conn.Frames():
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			p.t.Fatalf("%s: bad frame %s: %v", p.name, b, err)
		}
		return m
	case <-time.After(2 * time.Second):
		p.t.Fatalf("%s: no frame received", p.name)
	}
	return nil
}

func (p *peer) expect(typ string) map[string]any {
	p.t.Helper()
	m := p.next()
	if m["type"] != typ {
		p.t.Fatalf("%s: expected %q frame, got %v", p.name, typ, m)
	}
	return m
}

// skipTo discards frames until one of the given type arrives.
func (p *peer) skipTo(typ string) map[string]any {
	p.t.Helper()
	for {
		if m := p.next(); m["type"] == typ {
			return m
		}
	}
}

func (p *peer) drain() {
	for {
		select {
		case <-p.conn.Frames():
		default:
			return
		}
	}
}

func (p *peer) quiet() {
	p.t.Helper()
	select {
	case b := <-p.conn.Frames():
		p.t.Fatalf("%s: unexpected frame %s", p.name, b)
	default:
	}
}

func (p *peer) expectError(contains string) {
	p.t.Helper()
	m := p.expect(msgError)
	if msg, _ := m["message"].(string); !strings.Contains(msg, contains) {
		p.t.Fatalf("%s: error %q does not mention %q", p.name, msg, contains)
	}
}

func (p *peer) expectRole(role, seat, color string) {
	p.t.Helper()
	m := p.expect(msgRole)
	got := fmt.Sprintf("%v/%v/%v", m["role"], orEmpty(m["seat"]), orEmpty(m["color"]))
	if want := role + "/" + seat + "/" + color; got != want {
		p.t.Fatalf("%s: role = %s, want %s", p.name, got, want)
	}
}

func orEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}

// plies renders a game_state frame as "1.e4/e5 2.Nf3/-".
func plies(t *testing.T, m map[string]any) string {
	t.Helper()
	list, ok := m["gameState"].([]any)
	if !ok {
		t.Fatalf("game_state without list: %v", m)
	}
	parts := make([]string, 0, len(list))
	for _, raw := range list {
		r := raw.(map[string]any)
		black := "-"
		if b, ok := r["black_halfmove"].(string); ok {
			black = b
		}
		parts = append(parts, fmt.Sprintf("%v.%v/%s", r["move"], r["white_halfmove"], black))
	}
	return strings.Join(parts, " ")
}

func recordsString(recs []ledger.MoveRecord) string {
	parts := make([]string, 0, len(recs))
	for _, r := range recs {
		black := r.BlackHalf
		if black == "" {
			black = "-"
		}
		parts = append(parts, fmt.Sprintf("%d.%s/%s", r.MoveNumber, r.WhiteHalf, black))
	}
	return strings.Join(parts, " ")
}

// startPvP seats ann (admin, white) and bob (black) and starts the game.
func startPvP(s *testSession) (ann, bob *peer) {
	s.t.Helper()
	ann = s.connect("ann")
	s.send(ann, `{"command":"admin.set_mode","mode":"pvp"}`)
	bob = s.connect("bob")
	s.send(ann, `{"command":"admin.set_color","color":"white"}`)
	s.send(ann, `{"command":"admin.start_game"}`)
	ann.drain()
	bob.drain()
	return ann, bob
}

func TestConnectHandshake(t *testing.T) {
	s := newTestSession(t, Options{})
	ann := s.connect("ann")
	ann.expectRole("admin", "", "")
	if m := ann.expect(msgGameState); plies(t, m) != "" {
		t.Fatalf("expected empty game state, got %v", m)
	}
	if m := ann.expect(msgPlayerList); fmt.Sprint(m["clients"]) != "[ann]" {
		t.Fatalf("unexpected player list %v", m)
	}
	if m := ann.expect(msgInfo); !strings.Contains(m["message"].(string), "client #1") {
		t.Fatalf("unexpected info %v", m)
	}
	ann.quiet()

	bob := s.connect("bob")
	bob.expectRole("observer", "", "")
	bob.expect(msgGameState)
	if m := bob.expect(msgPlayerList); fmt.Sprint(m["clients"]) != "[ann bob]" {
		t.Fatalf("unexpected player list %v", m)
	}
	bob.expect(msgInfo)
	if m := ann.expect(msgUserConnected); m["username"] != "bob" {
		t.Fatalf("unexpected user_connected %v", m)
	}
	ann.quiet()
}

func TestPvPScenario(t *testing.T) {
	s := newTestSession(t, Options{})
	ann := s.connect("ann")
	ann.drain()

	s.send(ann, `{"command":"admin.set_mode","mode":"pvp"}`)
	ann.expectRole("admin", "player1", "")

	bob := s.connect("bob")
	bob.expectRole("player2", "player2", "")
	bob.drain()
	ann.drain()
	cid := s.connect("cid")
	cid.expectRole("observer", "", "")
	cid.drain()
	ann.drain()
	bob.drain()

	s.send(ann, `{"command":"admin.set_color","color":"white"}`)
	ann.expectRole("admin", "player1", "white")
	bob.expectRole("player2", "player2", "black")

	s.send(ann, `{"command":"admin.start_game"}`)
	for _, p := range []*peer{ann, bob, cid} {
		if m := p.expect(msgGameStarted); m["mode"] != "pvp" {
			t.Fatalf("%s: unexpected game_started %v", p.name, m)
		}
		p.expect(msgGameState)
	}
	ann.drain()
	bob.drain()

	steps := []struct {
		who  *peer
		raw  string
		want string
	}{
		{ann, `{"command":"white_move","move":"e4"}`, "1.e4/-"},
		{bob, `{"command":"black_move","move":"e5"}`, "1.e4/e5"},
		{ann, `{"command":"white_move","move":"Nf3"}`, "1.e4/e5 2.Nf3/-"},
	}
	for _, st := range steps {
		s.send(st.who, st.raw)
		for _, p := range []*peer{ann, bob, cid} {
			if got := plies(t, p.expect(msgGameState)); got != st.want {
				t.Fatalf("%s after %s: state %q, want %q", p.name, st.raw, got, st.want)
			}
		}
	}
	if got := recordsString(s.state().Records); got != "1.e4/e5 2.Nf3/-" {
		t.Fatalf("ledger = %q", got)
	}
}

func TestOutOfTurnRejected(t *testing.T) {
	s := newTestSession(t, Options{})
	ann, bob := startPvP(s)
	cid := s.connect("cid")
	cid.drain()
	ann.drain()
	bob.drain()

	s.send(bob, `{"command":"black_move","move":"e5"}`)
	bob.expectError("White must move first")
	ann.quiet()
	cid.quiet()

	s.send(ann, `{"command":"white_move","move":"e4"}`)
	ann.drain()
	bob.drain()
	cid.drain()

	s.send(ann, `{"command":"white_move","move":"d4"}`)
	ann.expectError("Wait for Black")
	s.send(ann, `{"command":"black_move","move":"e5"}`)
	ann.expectError("not allowed")
	s.send(cid, `{"command":"black_move","move":"e5"}`)
	cid.expectError("not allowed")
	bob.quiet()

	if got := recordsString(s.state().Records); got != "1.e4/-" {
		t.Fatalf("rejected moves changed the ledger: %q", got)
	}
}

func TestConfigurationLockedWhileOngoing(t *testing.T) {
	s := newTestSession(t, Options{})
	ann, bob := startPvP(s)

	s.send(ann, `{"command":"admin.set_mode","mode":"pvb"}`)
	ann.expectError("configuration is locked")
	s.send(ann, `{"command":"admin.set_color","color":"black"}`)
	ann.expectError("configuration is locked")
	s.send(ann, `{"command":"admin.start_game"}`)
	ann.expectError("already in progress")
	bob.quiet()

	if st := s.state(); st.Mode != "pvp" || !st.Ongoing || st.Turn != "white" {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestMovesRejectedBeforeStart(t *testing.T) {
	s := newTestSession(t, Options{})
	ann := s.connect("ann")
	s.send(ann, `{"command":"admin.set_mode","mode":"pvp"}`)
	s.send(ann, `{"command":"admin.set_color","color":"white"}`)
	ann.drain()
	s.send(ann, `{"command":"white_move","move":"e4"}`)
	ann.expectError("No game is in progress")
	s.send(ann, `{"command":"admin.start_game"}`)
	ann.expectError("player 2 seat is empty")
	if st := s.state(); st.Turn != "" || st.Phase != "configuring" {
		t.Fatalf("unexpected idle state %+v", st)
	}
}

func TestAdminFailover(t *testing.T) {
	s := newTestSession(t, Options{})
	ann := s.connect("ann")
	bob := s.connect("bob")
	ann.drain()
	bob.drain()

	s.disconnect(ann)
	if m := bob.expect(msgUserDisconnected); m["username"] != "ann" {
		t.Fatalf("unexpected user_disconnected %v", m)
	}
	bob.expectRole("admin", "", "")

	s.send(bob, `{"command":"admin.set_mode","mode":"bvb"}`)
	bob.quiet()
	if st := s.state(); st.Mode != "bvb" {
		t.Fatalf("promoted admin could not configure: %+v", st)
	}

	s.disconnect(bob)
	if st := s.state(); st.Connections != 0 {
		t.Fatalf("connections left: %d", st.Connections)
	}
	// a fresh connection takes the empty admin slot
	cid := s.connect("cid")
	cid.expectRole("admin", "", "")
}

func TestMalformedCommands(t *testing.T) {
	s := newTestSession(t, Options{})
	ann := s.connect("ann")
	bob := s.connect("bob")
	ann.drain()
	bob.drain()

	cases := map[string]string{
		`not json`:                                  "Malformed command: invalid JSON",
		`{"move":"e4"}`:                             "command is required",
		`{"command":"fly"}`:                         `Unknown command "fly"`,
		`{"command":"white_move"}`:                  "move is required",
		`{"command":"admin.set_mode"}`:              "mode is required",
		`{"command":"admin.set_mode","mode":"x"}`:   "Invalid game mode",
		`{"command":"admin.set_color","color":"x"}`: "Invalid color choice",
		`{"command":"admin.transfer_admin"}`:        "targetWs is required",
	}
	for raw, want := range cases {
		s.send(ann, raw)
		ann.expectError(want)
	}
	s.send(ann, `{"command":"white_move","move":"`+strings.Repeat("e", 5000)+`"}`)
	ann.expectError("move is too long")
	s.send(ann, `{"command":"admin.transfer_admin","targetWs":"`+strings.Repeat("x", 300)+`"}`)
	ann.expectError("targetWs is too long")
	bob.quiet()

	s.send(bob, `{"command":"admin.set_mode","mode":"pvp"}`)
	bob.expectError("Only the admin")
	s.send(bob, `{"command":"reset"}`)
	bob.expectError("Only the admin")
	ann.quiet()

	// the session keeps working
	s.send(ann, `{"command":"admin.set_mode","mode":"pvp"}`)
	ann.expectRole("admin", "player1", "")
	bob.expectRole("player2", "player2", "")
}

func TestResetIdempotentAndArchived(t *testing.T) {
	repo := archive.NewMemoryRepository()
	s := newTestSession(t, Options{Archive: repo})
	ann, bob := startPvP(s)

	s.send(ann, `{"command":"white_move","move":"e4"}`)
	s.send(bob, `{"command":"black_move","move":"e5"}`)
	ann.drain()
	bob.drain()

	for i := 0; i < 2; i++ {
		s.send(ann, `{"command":"reset"}`)
		for _, p := range []*peer{ann, bob} {
			if got := plies(t, p.expect(msgGameState)); got != "" {
				t.Fatalf("reset #%d: %s still sees %q", i+1, p.name, got)
			}
			p.expect(msgInfo)
		}
		if st := s.state(); st.Ongoing || len(st.Records) != 0 {
			t.Fatalf("reset #%d left state %+v", i+1, st)
		}
	}

	recent, _ := repo.Recent(context.Background(), 10)
	if len(recent) != 1 {
		t.Fatalf("expected one archived game, got %d", len(recent))
	}
	g := recent[0]
	if g.WhiteName != "ann" || g.BlackName != "bob" || g.Method != "reset" || !strings.HasSuffix(g.PGN, "1. e4 e5 *") {
		t.Fatalf("unexpected archive record %+v", g)
	}

	// configuration is open again and the mode survives the reset
	s.send(ann, `{"command":"admin.set_color","color":"black"}`)
	ann.expectRole("admin", "player1", "black")
	if st := s.state(); st.Mode != "pvp" || st.Phase != "ready" {
		t.Fatalf("unexpected post-reset state %+v", st)
	}
}

func TestStoreFailureReportedToActor(t *testing.T) {
	s := newTestSession(t, Options{})
	ann, bob := startPvP(s)

	s.store.failAppend.Store(true)
	s.send(ann, `{"command":"white_move","move":"e4"}`)
	ann.expectError("Server error")
	bob.quiet()
	if st := s.state(); len(st.Records) != 0 || st.Turn != "white" {
		t.Fatalf("failed write changed the ledger: %+v", st)
	}

	s.store.failAppend.Store(false)
	s.send(ann, `{"command":"white_move","move":"e4"}`)
	if got := plies(t, bob.expect(msgGameState)); got != "1.e4/-" {
		t.Fatalf("retry state %q", got)
	}
}

func TestSeatReservedForReturningPlayer(t *testing.T) {
	s := newTestSession(t, Options{})
	ann, bob := startPvP(s)
	s.send(ann, `{"command":"white_move","move":"e4"}`)
	ann.drain()

	s.disconnect(bob)
	ann.expect(msgUserDisconnected)
	if m := ann.expect(msgInfo); !strings.Contains(m["message"].(string), "reserved") {
		t.Fatalf("expected seat notice, got %v", m)
	}

	eve := s.connect("eve")
	eve.expectRole("observer", "", "")
	ann.drain()

	back := s.connectAs("bob", "uid-bob")
	back.expectRole("player2", "player2", "black")
	if got := plies(t, back.expect(msgGameState)); got != "1.e4/-" {
		t.Fatalf("late joiner state %q", got)
	}
	back.drain()
	if m := ann.skipTo(msgInfo); !strings.Contains(m["message"].(string), "is back") {
		t.Fatalf("expected reclaim notice, got %v", m)
	}

	s.send(back, `{"command":"black_move","move":"e5"}`)
	if got := plies(t, ann.expect(msgGameState)); got != "1.e4/e5" {
		t.Fatalf("returning player move not applied: %q", got)
	}
}

func TestTransferAdmin(t *testing.T) {
	s := newTestSession(t, Options{})
	ann := s.connect("ann")
	bob := s.connect("bob")
	ann.drain()
	bob.drain()

	s.send(ann, `{"command":"admin.transfer_admin","targetWs":"nobody"}`)
	ann.expectError("no longer available")
	bob.quiet()

	s.send(ann, `{"command":"admin.transfer_admin","targetWs":"bob"}`)
	ann.expectRole("observer", "", "")
	bob.expectRole("admin", "", "")
	ann.expect(msgInfo)

	s.send(ann, `{"command":"admin.set_mode","mode":"pvp"}`)
	ann.expectError("Only the admin")

	s.send(bob, `{"command":"admin.transfer_admin","targetWs":"`+ann.conn.ID()+`"}`)
	bob.expectRole("observer", "", "")
	ann.expectRole("admin", "", "")
}

type scriptedMover struct {
	mu    sync.Mutex
	moves []bot.Result
	gate  chan struct{}
	calls atomic.Int32
}

func (m *scriptedMover) Move([]string) (bot.Result, error) {
	m.calls.Add(1)
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.moves) == 0 {
		return bot.Result{}, bot.ErrNoMoves
	}
	r := m.moves[0]
	m.moves = m.moves[1:]
	return r, nil
}

func TestBotAnswersInPvB(t *testing.T) {
	mover := &scriptedMover{moves: []bot.Result{{SAN: "e5"}, {SAN: "Nc6"}}}
	s := newTestSession(t, Options{Mover: mover})
	ann := s.connect("ann")
	s.send(ann, `{"command":"admin.set_mode","mode":"pvb"}`)
	s.send(ann, `{"command":"admin.set_color","color":"white"}`)
	s.send(ann, `{"command":"admin.start_game"}`)
	ann.drain()

	s.send(ann, `{"command":"white_move","move":"e4"}`)
	s.waitFor("bot reply", func(st Snapshot) bool { return recordsString(st.Records) == "1.e4/e5" })

	s.send(ann, `{"command":"black_move","move":"d5"}`)
	ann.skipTo(msgError)
	s.send(ann, `{"command":"white_move","move":"Nf3"}`)
	s.waitFor("second bot reply", func(st Snapshot) bool { return recordsString(st.Records) == "1.e4/e5 2.Nf3/Nc6" })
}

func TestBotVsBotPlaysToTheEnd(t *testing.T) {
	mover := &scriptedMover{moves: []bot.Result{
		{SAN: "f3"}, {SAN: "e5"}, {SAN: "g4"},
		{SAN: "Qh4#", Outcome: "black", Method: "checkmate"},
		{SAN: "never"},
	}}
	repo := archive.NewMemoryRepository()
	s := newTestSession(t, Options{Mover: mover, Archive: repo})
	ann := s.connect("ann")
	s.send(ann, `{"command":"admin.set_mode","mode":"bvb"}`)
	s.send(ann, `{"command":"admin.start_game"}`)

	s.waitFor("game over", func(st Snapshot) bool { return !st.Ongoing })
	m := ann.skipTo(msgInfo)
	for !strings.Contains(m["message"].(string), "Game over") {
		m = ann.skipTo(msgInfo)
	}
	if !strings.Contains(m["message"].(string), "black (checkmate)") {
		t.Fatalf("unexpected game over notice %v", m)
	}
	if got := recordsString(s.state().Records); got != "1.f3/e5 2.g4/Qh4#" {
		t.Fatalf("final ledger %q", got)
	}
	recent, _ := repo.Recent(context.Background(), 1)
	if len(recent) != 1 || recent[0].Result != "black" || recent[0].WhiteName != "Bot" {
		t.Fatalf("unexpected archive %+v", recent)
	}
	if mover.calls.Load() != 4 {
		t.Fatalf("bot kept playing after the end: %d calls", mover.calls.Load())
	}
}

func TestStaleBotMoveDiscarded(t *testing.T) {
	mover := &scriptedMover{moves: []bot.Result{{SAN: "e4"}}, gate: make(chan struct{})}
	s := newTestSession(t, Options{Mover: mover})
	ann := s.connect("ann")
	s.send(ann, `{"command":"admin.set_mode","mode":"pvb"}`)
	s.send(ann, `{"command":"admin.set_color","color":"black"}`)
	s.send(ann, `{"command":"admin.start_game"}`)
	s.waitFor("bot to be asked", func(Snapshot) bool { return mover.calls.Load() == 1 })

	s.send(ann, `{"command":"reset"}`)
	close(mover.gate)
	// let the stale move reach the loop
	time.Sleep(50 * time.Millisecond)
	s.sync()
	if st := s.state(); len(st.Records) != 0 || st.Ongoing {
		t.Fatalf("stale bot move applied: %+v", st)
	}
}

func TestClosedConnectionMessagesDiscarded(t *testing.T) {
	s := newTestSession(t, Options{})
	ann := s.connect("ann")
	ann.drain()
	ann.conn.Close()
	s.send(ann, `{"command":"admin.set_mode","mode":"pvp"}`)
	if st := s.state(); st.Mode != "" {
		t.Fatalf("command from closed connection applied: %+v", st)
	}
}

func TestHumanMateEndsBotGame(t *testing.T) {
	mover := &scriptedMover{moves: []bot.Result{{SAN: "f3"}, {SAN: "g4"}}}
	repo := archive.NewMemoryRepository()
	s := newTestSession(t, Options{Mover: mover, Archive: repo})
	ann := s.connect("ann")
	s.send(ann, `{"command":"admin.set_mode","mode":"pvb"}`)
	s.send(ann, `{"command":"admin.set_color","color":"black"}`)
	s.send(ann, `{"command":"admin.start_game"}`)

	s.waitFor("bot opens", func(st Snapshot) bool { return recordsString(st.Records) == "1.f3/-" })
	s.send(ann, `{"command":"black_move","move":"e5"}`)
	s.waitFor("bot second move", func(st Snapshot) bool { return recordsString(st.Records) == "1.f3/e5 2.g4/-" })
	s.send(ann, `{"command":"black_move","move":"Qh4#"}`)

	s.waitFor("game over", func(st Snapshot) bool { return !st.Ongoing })
	recent, err := repo.Recent(context.Background(), 1)
	if err != nil || len(recent) != 1 {
		t.Fatalf("expected archived game, got %v %v", recent, err)
	}
	if recent[0].Result != "black" || recent[0].Method != "checkmate" {
		t.Fatalf("unexpected archive %+v", recent[0])
	}
}

func TestUnplayableMoveAbandonsBotGame(t *testing.T) {
	repo := archive.NewMemoryRepository()
	s := newTestSession(t, Options{Mover: bot.NewRandomMover(), Archive: repo})
	ann := s.connect("ann")
	s.send(ann, `{"command":"admin.set_mode","mode":"pvb"}`)
	s.send(ann, `{"command":"admin.set_color","color":"white"}`)
	s.send(ann, `{"command":"admin.start_game"}`)
	ann.drain()

	s.send(ann, `{"command":"white_move","move":"hello"}`)
	s.waitFor("game abandoned", func(st Snapshot) bool { return !st.Ongoing })

	m := ann.skipTo(msgInfo)
	if !strings.Contains(m["message"].(string), "black bot cannot continue") {
		t.Fatalf("unexpected notice %v", m)
	}
	if m = ann.skipTo(msgInfo); !strings.Contains(m["message"].(string), "no result (abandoned)") {
		t.Fatalf("unexpected game over notice %v", m)
	}
	recent, err := repo.Recent(context.Background(), 1)
	if err != nil || len(recent) != 1 {
		t.Fatalf("expected archived game, got %v %v", recent, err)
	}
	if recent[0].Result != "" || recent[0].Method != "abandoned" || !strings.Contains(recent[0].PGN, "1. hello") {
		t.Fatalf("unexpected archive %+v", recent[0])
	}

	s.send(ann, `{"command":"white_move","move":"e4"}`)
	ann.expectError("No game is in progress")
}
