// Package player implements the Player entity: a registered username and
// its Elo-style rating, shared by reference across games and invitations.
package player

import (
	"math"
	"sync"
	"sync/atomic"
)

// InitialRating is the rating assigned to a player the first time they log
// in under a new username.
const InitialRating = 1500

// EloK is the K-factor used when updating ratings after a game. It
// defaults to 32 but is overridden once at startup from the server's
// --points flag (see internal/config), before any connection is accepted.
var EloK float64 = 32

var serialCounter uint64

func nextSerial() uint64 {
	return atomic.AddUint64(&serialCounter, 1)
}

// Result describes the outcome of a completed game from the perspective of
// a pair of players.
type Result int

const (
	// Draw indicates the game ended without a winner.
	Draw Result = iota
	// FirstPlayerWon indicates the first player of the pair won.
	FirstPlayerWon
	// SecondPlayerWon indicates the second player of the pair won.
	SecondPlayerWon
)

// Player is a registered username together with its current rating. A
// Player is shared by the player registry and every client session logged
// in under its username; the reference count tracks how many such owners
// currently hold a pointer to it, mirroring the explicit refcounting
// discipline of the registry it came from.
type Player struct {
	serial uint64
	mu     sync.Mutex

	username string
	rating   int
	refCount int
}

// New creates a Player with the given username and the initial rating. The
// returned Player has a reference count of one, corresponding to the
// reference returned to the caller.
func New(username string) *Player {
	p := &Player{
		serial:   nextSerial(),
		username: username,
		rating:   InitialRating,
	}
	p.refCount = 1
	return p
}

// Serial returns the player's process-lifetime-unique identity, used only
// to produce a total lock-acquisition order between two players.
func (p *Player) Serial() uint64 {
	return p.serial
}

// Ref increments the reference count and returns p, for chaining at call
// sites that store the result into a new owner's field.
func (p *Player) Ref() *Player {
	p.mu.Lock()
	p.refCount++
	p.mu.Unlock()
	return p
}

// Unref decrements the reference count. The Player itself has no
// resources to release beyond what the garbage collector already reclaims
// once the last reference is dropped; this method exists so that refcount
// accounting — and bugs in it — stays visible and testable, matching the
// discipline used for Invitation and Game.
func (p *Player) Unref() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refCount <= 0 {
		panic("player: unref of player with non-positive reference count")
	}
	p.refCount--
}

// RefCount returns the current reference count, for tests.
func (p *Player) RefCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refCount
}

// Username returns the player's username.
func (p *Player) Username() string {
	return p.username
}

// Rating returns the player's current rating.
func (p *Player) Rating() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rating
}

// PostResult updates the ratings of first and second according to an
// Arpad Elo-style formula, given the outcome of a game between them.
//
// The two players' mutexes are always acquired in ascending Serial order,
// regardless of which is "first" or "second" in the game, so that two
// concurrent calls involving an overlapping pair of players can never
// deadlock.
func PostResult(first, second *Player, result Result) {
	var s1, s2 float64
	switch result {
	case Draw:
		s1, s2 = 0.5, 0.5
	case FirstPlayerWon:
		s1, s2 = 1, 0
	case SecondPlayerWon:
		s1, s2 = 0, 1
	}

	lo, hi := first, second
	if lo.serial > hi.serial {
		lo, hi = hi, lo
	}
	lo.mu.Lock()
	if hi != lo {
		hi.mu.Lock()
	}

	r1, r2 := float64(first.rating), float64(second.rating)
	e1 := 1 / (1 + math.Pow(10, (r2-r1)/400.0))
	e2 := 1 / (1 + math.Pow(10, (r1-r2)/400.0))

	// Truncate toward zero, not round or floor: this matches the original
	// server's C `(int)` cast on the rating delta.
	first.rating += int(EloK * (s1 - e1))
	second.rating += int(EloK * (s2 - e2))

	if hi != lo {
		hi.mu.Unlock()
	}
	lo.mu.Unlock()
}
