package bot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/Cheese-session-server/internal/obslog"
	"go.uber.org/zap"
)

const (
	defaultReadyTimeout = 4 * time.Second
	defaultMoveTime     = 300 * time.Millisecond
)

// EngineOptions configure a UCI engine process.
type EngineOptions struct {
	Path       string
	MoveTime   time.Duration
	SkillLevel int
}

// EngineMover asks a UCI engine for the best move and falls back to a random
// legal move whenever the engine fails. The process is started on first use and
// restarted after an error.
type EngineMover struct {
	opts     EngineOptions
	fallback *RandomMover
	logger   *zap.Logger

	mu   sync.Mutex
	proc *engineProc
}

func NewEngineMover(opts EngineOptions, logger *zap.Logger) (*EngineMover, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("engine path is required")
	}
	if opts.SkillLevel < 0 || opts.SkillLevel > 20 {
		return nil, fmt.Errorf("skill level %d out of range 0-20", opts.SkillLevel)
	}
	if opts.MoveTime <= 0 {
		opts.MoveTime = defaultMoveTime
	}
	return &EngineMover{opts: opts, fallback: NewRandomMover(), logger: obslog.Or(logger)}, nil
}

func (m *EngineMover) Move(halfMoves []string) (Result, error) {
	game, history, err := replayUCI(halfMoves)
	if err != nil {
		return Result{}, err
	}
	if game.Outcome() != nchess.NoOutcome {
		return Result{}, ErrNoMoves
	}

	best, err := m.search(history)
	if err == nil {
		var res Result
		if res, err = playUCI(game, best); err == nil {
			return res, nil
		}
	}
	m.logger.Warn("bot_engine_fallback", zap.String("path", m.opts.Path), zap.Error(err))
	return m.fallback.Move(halfMoves)
}

func (m *EngineMover) search(history []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.proc == nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultReadyTimeout)
		p, err := startEngine(ctx, m.opts)
		cancel()
		if err != nil {
			return "", err
		}
		m.proc = p
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*m.opts.MoveTime+2*time.Second)
	defer cancel()
	best, err := m.proc.bestMove(ctx, history, m.opts.MoveTime)
	if err != nil {
		_ = m.proc.close()
		m.proc = nil
		return "", err
	}
	return best, nil
}

// Close stops the engine process if one is running.
func (m *EngineMover) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.proc == nil {
		return nil
	}
	err := m.proc.close()
	m.proc = nil
	return err
}

type engineProc struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	// lines is closed when the engine's stdout ends.
	lines chan string
}

func startEngine(ctx context.Context, opts EngineOptions) (*engineProc, error) {
	cmd := exec.Command(opts.Path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	p := &engineProc{cmd: cmd, stdin: stdin, lines: make(chan string, 64)}
	go func() {
		defer close(p.lines)
		sc := bufio.NewScanner(stdout)
		for sc.Scan() {
			p.lines <- strings.TrimSpace(sc.Text())
		}
	}()

	if err := p.send("uci"); err != nil {
		_ = p.close()
		return nil, err
	}
	if _, err := p.await(ctx, "uciok"); err != nil {
		_ = p.close()
		return nil, fmt.Errorf("wait uciok: %w", err)
	}
	if err := p.send("setoption name Skill Level value " + strconv.Itoa(opts.SkillLevel)); err != nil {
		_ = p.close()
		return nil, err
	}
	if err := p.send("isready"); err != nil {
		_ = p.close()
		return nil, err
	}
	if _, err := p.await(ctx, "readyok"); err != nil {
		_ = p.close()
		return nil, fmt.Errorf("wait readyok: %w", err)
	}
	return p, nil
}

func (p *engineProc) bestMove(ctx context.Context, history []string, moveTime time.Duration) (string, error) {
	pos := "position startpos"
	if len(history) > 0 {
		pos += " moves " + strings.Join(history, " ")
	}
	if err := p.send(pos); err != nil {
		return "", err
	}
	if err := p.send("go movetime " + strconv.FormatInt(moveTime.Milliseconds(), 10)); err != nil {
		return "", err
	}
	line, err := p.await(ctx, "bestmove")
	if err != nil {
		return "", fmt.Errorf("wait bestmove: %w", err)
	}
	parts := strings.Fields(line)
	if len(parts) < 2 || parts[1] == "(none)" {
		return "", ErrNoMoves
	}
	return parts[1], nil
}

func (p *engineProc) send(msg string) error {
	if _, err := io.WriteString(p.stdin, msg+"\n"); err != nil {
		return fmt.Errorf("send %q: %w", msg, err)
	}
	return nil
}

// await returns the first line starting with prefix.
func (p *engineProc) await(ctx context.Context, prefix string) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case line, ok := <-p.lines:
			if !ok {
				return "", errors.New("engine exited")
			}
			if strings.HasPrefix(line, prefix) {
				return line, nil
			}
		}
	}
}

func (p *engineProc) close() error {
	_ = p.send("quit")
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	go func() {
		for range p.lines {
		}
	}()
	// exit status after Kill is not interesting
	_ = p.cmd.Wait()
	return nil
}

// replayUCI replays the half-moves like replay and also returns them in UCI notation.
func replayUCI(halfMoves []string) (*nchess.Game, []string, error) {
	game, err := replay(halfMoves)
	if err != nil {
		return nil, nil, err
	}
	moves := game.Moves()
	history := make([]string, 0, len(moves))
	for _, mv := range moves {
		history = append(history, mv.String())
	}
	return game, history, nil
}

// playUCI applies an engine move and reports it in SAN. Only moves legal in the
// current position are accepted.
func playUCI(game *nchess.Game, uci string) (Result, error) {
	san, ok := legalSAN(game, strings.ToLower(uci))
	if !ok {
		return Result{}, fmt.Errorf("engine move %q is not legal", uci)
	}
	if err := game.PushNotationMove(san, nchess.AlgebraicNotation{}, nil); err != nil {
		return Result{}, fmt.Errorf("engine move %q: %w", uci, err)
	}
	outcome, method := outcomeOf(game)
	return Result{SAN: san, Outcome: outcome, Method: method}, nil
}

func legalSAN(game *nchess.Game, uci string) (string, bool) {
	pos := game.Position()
	moves := game.ValidMoves()
	for i := range moves {
		if (nchess.UCINotation{}).Encode(pos, &moves[i]) == uci {
			return nchess.AlgebraicNotation{}.Encode(pos, &moves[i]), true
		}
	}
	return "", false
}
