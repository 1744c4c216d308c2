// Package invitation implements the OPEN/ACCEPTED/CLOSED state machine
// through which two clients agree to play a game against each other.
package invitation

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mkbarrett/jeux/internal/game"
	"github.com/mkbarrett/jeux/internal/protocol"
)

var serialCounter uint64

func nextSerial() uint64 {
	return atomic.AddUint64(&serialCounter, 1)
}

// Endpoint is the subset of a client session's interface an Invitation
// needs: enough to hold a counted reference and identify the client. It is
// an interface, rather than a concrete *client.Client, so that this
// package and internal/client do not import one another — the client
// session holds Invitations in its slot table, and an Invitation holds
// back-references to the two client sessions it connects.
type Endpoint interface {
	Ref(why string)
	Unref(why string)
	Username() string
}

// State is the lifecycle stage of an Invitation.
type State int

const (
	Open State = iota
	Accepted
	Closed
)

func (s State) String() string {
	switch s {
	case Open:
		return "OPEN"
	case Accepted:
		return "ACCEPTED"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Invitation connects a source and target client, each assigned a game
// role, and (once accepted) the Game they are playing.
type Invitation struct {
	serial uint64
	mu     sync.Mutex

	source     Endpoint
	sourceRole protocol.Role
	target     Endpoint
	targetRole protocol.Role

	state    State
	game     *game.Game
	refCount int
}

// New creates an Invitation in the Open state between source and target,
// who must be different clients. The reference counts of source and
// target are each increased by one to reflect the references now held by
// the Invitation. The returned Invitation has a reference count of one.
func New(source, target Endpoint, sourceRole, targetRole protocol.Role) (*Invitation, error) {
	if source == target {
		return nil, fmt.Errorf("invitation: source and target cannot be the same client")
	}

	source.Ref("as source of new invitation")
	target.Ref("as target of new invitation")

	inv := &Invitation{
		serial:     nextSerial(),
		source:     source,
		sourceRole: sourceRole,
		target:     target,
		targetRole: targetRole,
		state:      Open,
		refCount:   1,
	}
	return inv, nil
}

// Serial returns the invitation's process-lifetime-unique identity, used
// only to produce a total lock-acquisition order between entities.
func (inv *Invitation) Serial() uint64 {
	return inv.serial
}

// Ref increments the reference count and returns inv.
func (inv *Invitation) Ref() *Invitation {
	inv.mu.Lock()
	inv.refCount++
	inv.mu.Unlock()
	return inv
}

// Unref decrements the reference count. Once it reaches zero, the
// invitation releases its references to its source and target clients,
// and to its game, if any.
func (inv *Invitation) Unref() {
	inv.mu.Lock()
	if inv.refCount <= 0 {
		inv.mu.Unlock()
		panic("invitation: unref of invitation with non-positive reference count")
	}
	inv.refCount--
	if inv.refCount > 0 {
		inv.mu.Unlock()
		return
	}
	source, target, g := inv.source, inv.target, inv.game
	inv.mu.Unlock()

	source.Unref("because invitation is being freed")
	target.Unref("because invitation is being freed")
	if g != nil {
		g.Unref()
	}
}

// RefCount returns the current reference count, for tests.
func (inv *Invitation) RefCount() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.refCount
}

// Source returns the invitation's source client.
func (inv *Invitation) Source() Endpoint { return inv.source }

// Target returns the invitation's target client.
func (inv *Invitation) Target() Endpoint { return inv.target }

// SourceRole returns the role to be played by the invitation's source.
func (inv *Invitation) SourceRole() protocol.Role { return inv.sourceRole }

// TargetRole returns the role to be played by the invitation's target.
func (inv *Invitation) TargetRole() protocol.Role { return inv.targetRole }

// State returns the invitation's current lifecycle state.
func (inv *Invitation) State() State {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.state
}

// Game returns the game associated with the invitation, or nil if it has
// not yet been accepted.
func (inv *Invitation) Game() *game.Game {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.game
}

// Accept transitions the invitation from Open to Accepted, creating the
// Game the two clients will play. It is an error unless the invitation is
// currently Open.
func (inv *Invitation) Accept() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.state != Open {
		return fmt.Errorf("invitation: not in OPEN state")
	}
	inv.state = Accepted
	inv.game = game.New()
	return nil
}

// Close transitions the invitation to Closed from either Open or
// Accepted. If a game is in progress, role identifies the player who
// resigns as a result of the close; passing protocol.NullRole is only
// valid when there is no game in progress (or it has already ended).
func (inv *Invitation) Close(role protocol.Role) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.state != Open && inv.state != Accepted {
		return fmt.Errorf("invitation: not in OPEN or ACCEPTED state")
	}

	if inv.game != nil && !inv.game.IsOver() {
		if role == protocol.NullRole {
			return fmt.Errorf("invitation: game is still in progress")
		}
		if err := inv.game.Resign(role); err != nil {
			return fmt.Errorf("invitation: closing with game in progress: %w", err)
		}
	}

	inv.state = Closed
	return nil
}
