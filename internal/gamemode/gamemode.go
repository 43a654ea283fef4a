package gamemode

import (
	"crypto/rand"
	"errors"
	"strings"

	"github.com/park285/Cheese-session-server/internal/ledger"
)

type Mode string

const (
	Unset   Mode = ""
	PvP     Mode = "pvp"
	PvBot   Mode = "pvb"
	BotVBot Mode = "bvb"
)

type ColorChoice string

const (
	ColorWhite  ColorChoice = "white"
	ColorBlack  ColorChoice = "black"
	ColorRandom ColorChoice = "random"
)

// Phase is the coarse session state derived from configuration and seat occupancy.
// A finished game falls straight back to Configuring.
type Phase string

const (
	PhaseUnconfigured Phase = "unconfigured"
	PhaseConfiguring  Phase = "configuring"
	PhaseReady        Phase = "ready"
	PhaseInProgress   Phase = "in_progress"
)

var (
	ErrConfigurationLocked = errors.New("configuration locked while a game is ongoing")
	ErrInvalidMode         = errors.New("invalid game mode")
	ErrInvalidColor        = errors.New("invalid color choice")
	ErrNotReady            = errors.New("session not ready to start")
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case PvP:
		return PvP, nil
	case PvBot:
		return PvBot, nil
	case BotVBot:
		return BotVBot, nil
	default:
		return Unset, ErrInvalidMode
	}
}

func ParseColorChoice(s string) (ColorChoice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return ColorWhite, nil
	case "black", "b":
		return ColorBlack, nil
	case "random", "r":
		return ColorRandom, nil
	default:
		return "", ErrInvalidColor
	}
}

// Configurator holds mode, player-1 color, and the ongoing flag of the single session.
// It is owned by the session loop and not safe for concurrent use.
type Configurator struct {
	mode    Mode
	choice  ColorChoice
	p1Color ledger.Color
	ongoing bool
	coin    func() bool
}

func New() *Configurator { return &Configurator{coin: cryptoCoin} }

// cryptoCoin flips a fair coin; a failed read falls back to heads.
func cryptoCoin() bool {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		return true
	}
	return b[0]&1 == 1
}

func (c *Configurator) Mode() Mode          { return c.mode }
func (c *Configurator) Ongoing() bool       { return c.ongoing }
func (c *Configurator) Choice() ColorChoice { return c.choice }

// Player1Color is None until a color has been chosen or a game has started.
func (c *Configurator) Player1Color() ledger.Color { return c.p1Color }
func (c *Configurator) Player2Color() ledger.Color { return c.p1Color.Opposite() }

func (c *Configurator) SetMode(m Mode) error {
	if c.ongoing {
		return ErrConfigurationLocked
	}
	if m == Unset {
		return ErrInvalidMode
	}
	c.mode = m
	return nil
}

// SetColor fixes player 1's color. Random is resolved here, once.
func (c *Configurator) SetColor(choice ColorChoice) (ledger.Color, error) {
	if c.ongoing {
		return ledger.None, ErrConfigurationLocked
	}
	switch choice {
	case ColorWhite:
		c.p1Color = ledger.White
	case ColorBlack:
		c.p1Color = ledger.Black
	case ColorRandom:
		c.p1Color = c.flip()
	default:
		return ledger.None, ErrInvalidColor
	}
	c.choice = choice
	return c.p1Color, nil
}

func (c *Configurator) flip() ledger.Color {
	if c.coin() {
		return ledger.White
	}
	return ledger.Black
}

// IsReadyToStart reports whether Start would succeed given the current seat occupancy.
func (c *Configurator) IsReadyToStart(p1, p2 bool) bool {
	if c.ongoing {
		return false
	}
	switch c.mode {
	case PvP:
		return p1 && p2
	case PvBot:
		return p1
	case BotVBot:
		return true
	default:
		return false
	}
}

// Start flips the session into a live game. A color never chosen is resolved randomly here;
// an earlier choice is kept as is.
func (c *Configurator) Start(p1, p2 bool) error {
	if !c.IsReadyToStart(p1, p2) {
		return ErrNotReady
	}
	if c.p1Color == ledger.None {
		c.p1Color = c.flip()
		c.choice = ColorRandom
	}
	c.ongoing = true
	return nil
}

// End marks the game finished; configuration is allowed again.
func (c *Configurator) End() { c.ongoing = false }

func (c *Configurator) Phase(p1, p2 bool) Phase {
	switch {
	case c.ongoing:
		return PhaseInProgress
	case c.IsReadyToStart(p1, p2):
		return PhaseReady
	case c.mode == Unset && c.choice == "":
		return PhaseUnconfigured
	default:
		return PhaseConfiguring
	}
}

// IsBotColor reports whether the side is played by the server: the side opposite
// player 1 in pvb, both sides in bvb.
func (c *Configurator) IsBotColor(color ledger.Color) bool {
	if color == ledger.None {
		return false
	}
	switch c.mode {
	case PvBot:
		return color == c.Player2Color()
	case BotVBot:
		return true
	default:
		return false
	}
}

// NeedsPlayer2 reports whether the mode seats a second human.
func (m Mode) NeedsPlayer2() bool { return m == PvP }

// SeatsPlayer1 reports whether the mode seats a human as player 1.
func (m Mode) SeatsPlayer1() bool { return m == PvP || m == PvBot }
