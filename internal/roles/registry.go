package roles

import (
	"errors"
	"strings"

	"github.com/park285/Cheese-session-server/internal/gamemode"
)

type Role string

const (
	Admin    Role = "admin"
	Player1  Role = "player1"
	Player2  Role = "player2"
	Observer Role = "observer"
)

var (
	ErrNotAdmin          = errors.New("sender is not the admin")
	ErrTargetUnavailable = errors.New("transfer target is not connected")
)

// Member is one live connection as the registry sees it.
type Member struct {
	ConnID     string
	IdentityID string
	Name       string
}

// Assignment is the outcome of admitting a connection.
type Assignment struct {
	Role      Role
	Seat      Role
	Reclaimed bool
}

// Release is the outcome of removing a connection.
type Release struct {
	Member      Member
	WasAdmin    bool
	NewAdmin    string
	VacatedSeat Role
	Reserved    bool
}

// Registry is the single source of truth for who holds which role.
//
// Admin and the two player seats are independent slots: in pvp and pvb the admin
// also sits as player 1. Connect order is kept explicitly and drives failover
// (oldest remaining connection first) and pvp seating. Not safe for concurrent use.
type Registry struct {
	order []Member
	admin string
	p1    string
	p2    string
	// identity ids holding a vacated seat while a game is ongoing
	reserved map[Role]string
}

func New() *Registry { return &Registry{reserved: make(map[Role]string)} }

// AssignOnConnect admits m. A reserved seat is reclaimed first; then the admin slot
// goes to m when empty; otherwise in pvp an empty, unreserved player 2 seat goes to m.
func (r *Registry) AssignOnConnect(m Member, mode gamemode.Mode, ongoing bool) Assignment {
	r.order = append(r.order, m)
	var out Assignment

	if ongoing && m.IdentityID != "" {
		for _, seat := range []Role{Player1, Player2} {
			if r.holder(seat) == "" && r.reserved[seat] == m.IdentityID {
				r.setSeat(seat, m.ConnID)
				delete(r.reserved, seat)
				out.Seat, out.Reclaimed = seat, true
				break
			}
		}
	}
	if r.admin == "" {
		r.admin = m.ConnID
	} else if !out.Reclaimed && mode == gamemode.PvP && r.p2 == "" && r.reserved[Player2] == "" {
		r.p2 = m.ConnID
		out.Seat = Player2
	}
	out.Role = r.Primary(m.ConnID)
	return out
}

// ReleaseOnDisconnect removes the connection. The admin slot passes to the oldest
// remaining connection; a vacated player seat is reserved for the same identity
// while a game is ongoing.
func (r *Registry) ReleaseOnDisconnect(connID string, ongoing bool) (Release, bool) {
	idx := r.index(connID)
	if idx < 0 {
		return Release{}, false
	}
	m := r.order[idx]
	r.order = append(r.order[:idx:idx], r.order[idx+1:]...)
	rel := Release{Member: m}

	if r.admin == connID {
		rel.WasAdmin = true
		r.admin = ""
		if len(r.order) > 0 {
			r.admin = r.order[0].ConnID
			rel.NewAdmin = r.admin
		}
	}
	if seat := r.Seat(connID); seat != Observer {
		r.setSeat(seat, "")
		rel.VacatedSeat = seat
		if ongoing && m.IdentityID != "" {
			r.reserved[seat] = m.IdentityID
			rel.Reserved = true
		}
	}
	return rel, true
}

// TransferAdmin moves the admin slot from `from` to the connection named by target:
// a connection id first, else the oldest connection with that display name.
func (r *Registry) TransferAdmin(from, target string) (string, error) {
	if from == "" || r.admin != from {
		return "", ErrNotAdmin
	}
	to := r.resolve(target)
	if to == "" {
		return "", ErrTargetUnavailable
	}
	r.admin = to
	return to, nil
}

func (r *Registry) resolve(target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return ""
	}
	if r.index(target) >= 0 {
		return target
	}
	for _, m := range r.order {
		if m.Name == target {
			return m.ConnID
		}
	}
	return ""
}

// ApplyMode re-seats players for a newly configured mode and drops any reservations.
// pvp: player 1 is the admin, player 2 the oldest other connection. pvb: player 1 is
// the admin. bvb: no human seats. Returns the connections whose seat changed.
func (r *Registry) ApplyMode(mode gamemode.Mode) []string {
	oldP1, oldP2 := r.p1, r.p2
	r.p1, r.p2 = "", ""
	clear(r.reserved)

	if mode.SeatsPlayer1() {
		r.p1 = r.admin
	}
	if mode.NeedsPlayer2() {
		for _, m := range r.order {
			if m.ConnID != r.admin {
				r.p2 = m.ConnID
				break
			}
		}
	}

	var changed []string
	seen := make(map[string]struct{}, 4)
	for _, pair := range [][2]string{{oldP1, r.p1}, {oldP2, r.p2}} {
		if pair[0] == pair[1] {
			continue
		}
		for _, id := range pair {
			if _, dup := seen[id]; id == "" || dup || r.index(id) < 0 {
				continue
			}
			seen[id] = struct{}{}
			changed = append(changed, id)
		}
	}
	return changed
}

// ClearReservations forgets seats held for disconnected players.
func (r *Registry) ClearReservations() { clear(r.reserved) }

func (r *Registry) Reservation(seat Role) string { return r.reserved[seat] }

func (r *Registry) IsAdmin(connID string) bool { return connID != "" && r.admin == connID }

func (r *Registry) Admin() string { return r.admin }

// Seat returns Player1, Player2, or Observer.
func (r *Registry) Seat(connID string) Role {
	switch {
	case connID == "":
		return Observer
	case r.p1 == connID:
		return Player1
	case r.p2 == connID:
		return Player2
	default:
		return Observer
	}
}

// Primary is the role announced to a connection: Admin outranks a seat.
func (r *Registry) Primary(connID string) Role {
	if r.IsAdmin(connID) {
		return Admin
	}
	return r.Seat(connID)
}

// Occupied reports whether the player seats have a live holder.
func (r *Registry) Occupied() (p1, p2 bool) { return r.p1 != "", r.p2 != "" }

func (r *Registry) Holder(seat Role) string { return r.holder(seat) }

func (r *Registry) Member(connID string) (Member, bool) {
	if i := r.index(connID); i >= 0 {
		return r.order[i], true
	}
	return Member{}, false
}

// Members returns live connections oldest first.
func (r *Registry) Members() []Member { return append([]Member(nil), r.order...) }

// Names returns display names oldest first.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.order))
	for _, m := range r.order {
		out = append(out, m.Name)
	}
	return out
}

func (r *Registry) Len() int { return len(r.order) }

func (r *Registry) holder(seat Role) string {
	switch seat {
	case Player1:
		return r.p1
	case Player2:
		return r.p2
	default:
		return ""
	}
}

func (r *Registry) setSeat(seat Role, connID string) {
	switch seat {
	case Player1:
		r.p1 = connID
	case Player2:
		r.p2 = connID
	}
}

func (r *Registry) index(connID string) int {
	for i, m := range r.order {
		if m.ConnID == connID {
			return i
		}
	}
	return -1
}
