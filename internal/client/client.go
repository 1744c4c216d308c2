// Package client implements the per-connection client session: login
// state, the invitation slot table, outbound send serialization, and the
// actions a connection can trigger (invite, accept, move, resign, ...).
//
// This is the nerve center of the server: nearly every cross-entity
// interaction - registering an invitation in two slot tables, posting an
// Elo result, pushing an asynchronous notification to a peer - happens
// here, under a locking discipline that avoids deadlock between two
// clients acting concurrently on the same invitation.
package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mkbarrett/jeux/internal/invitation"
	"github.com/mkbarrett/jeux/internal/player"
	"github.com/mkbarrett/jeux/internal/protocol"
)

var (
	ErrAlreadyLoggedIn     = errors.New("client: already logged in")
	ErrLoginRequired       = errors.New("client: login required")
	ErrInvitationNotFound  = errors.New("client: no such invitation")
	ErrNotInvitationSource = errors.New("client: not the source of this invitation")
	ErrNotInvitationTarget = errors.New("client: not the target of this invitation")
	ErrInvitationNotOpen   = errors.New("client: invitation is not open")
	ErrGameNotActive       = errors.New("client: invitation has no active game")
	ErrSlotTableFull       = errors.New("client: invitation slot table is full")
	ErrInviteSelf          = errors.New("client: cannot invite self")
)

var serialCounter uint64

func nextSerial() uint64 {
	return atomic.AddUint64(&serialCounter, 1)
}

// slot is one entry in a client's invitation table: the invitation itself,
// the role this client plays in it, and the id the peer endpoint uses to
// refer to the very same invitation in its own table.
type slot struct {
	inv    *invitation.Invitation
	role   protocol.Role
	peerID uint8
}

// Client is a single connection's session state.
type Client struct {
	serial uint64
	conn   net.Conn
	codec  *protocol.Codec
	sendMu sync.Mutex

	mu        sync.Mutex
	player    *player.Player
	slots     [256]*slot
	slotCount int
	refCount  int
}

// New wraps conn in a new, not-yet-logged-in Client session with a
// reference count of one.
func New(conn net.Conn) *Client {
	return &Client{
		serial:   nextSerial(),
		conn:     conn,
		codec:    protocol.NewCodec(conn),
		refCount: 1,
	}
}

// Serial returns the client's process-lifetime-unique identity, used only
// to produce a total lock-acquisition order between two clients.
func (c *Client) Serial() uint64 { return c.serial }

// Conn returns the underlying connection.
func (c *Client) Conn() net.Conn { return c.conn }

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Codec returns the session's framing codec, for the service loop's
// inbound recv/dispatch loop. Outbound sends always go through Send,
// never directly through the codec, so that pushes from other goroutines
// stay serialized against this client's own replies.
func (c *Client) Codec() *protocol.Codec { return c.codec }

// Ref increments the reference count. why documents the reason at the
// call site; it is not recorded or logged.
func (c *Client) Ref(why string) {
	c.mu.Lock()
	c.refCount++
	c.mu.Unlock()
}

// Unref decrements the reference count.
func (c *Client) Unref(why string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refCount <= 0 {
		panic("client: unref of client with non-positive reference count")
	}
	c.refCount--
}

// RefCount returns the current reference count, for tests.
func (c *Client) RefCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refCount
}

// Username returns the logged-in player's username, or "" if not logged
// in. This satisfies invitation.Endpoint.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.player == nil {
		return ""
	}
	return c.player.Username()
}

// Player returns the logged-in player, or nil if not logged in.
func (c *Client) Player() *player.Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player
}

// IsLoggedIn reports whether a player is attached to this session.
func (c *Client) IsLoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player != nil
}

// Login attaches p to this session. It fails if the session is already
// logged in. Uniqueness of the username across the server is the client
// registry's concern, not this method's.
func (c *Client) Login(p *player.Player) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.player != nil {
		return ErrAlreadyLoggedIn
	}
	c.player = p
	return nil
}

// Send writes hdr and payload over this client's connection, serialized
// against every other sender of this client (pushes from peers, and this
// client's own replies) so that bytes of distinct packets never
// interleave. A freshly sampled timestamp is stamped into hdr.
func (c *Client) Send(hdr *protocol.Header, payload []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	hdr.TimestampSec, hdr.TimestampNsec = stamp()
	return c.codec.Send(hdr, payload)
}

func stamp() (sec, nsec uint32) {
	now := time.Now()
	return uint32(now.Unix()), uint32(now.Nanosecond())
}

// sendLogged sends a packet and swallows any error beyond logging it: a
// failed push to a (possibly disconnected) peer must never fail the
// local action that triggered it.
func (c *Client) sendLogged(hdr *protocol.Header, payload []byte) {
	if err := c.Send(hdr, payload); err != nil {
		slog.Warn("push failed", "to", c.Username(), "type", hdr.Type.String(), "err", err)
	}
}

func (c *Client) pushInvited(id uint8, role protocol.Role, sourceUsername string) {
	c.sendLogged(&protocol.Header{Type: protocol.InvitedPkt, ID: id, Role: role}, []byte(sourceUsername))
}

func (c *Client) pushRevoked(id uint8) {
	c.sendLogged(&protocol.Header{Type: protocol.RevokedPkt, ID: id}, nil)
}

func (c *Client) pushDeclined(id uint8) {
	c.sendLogged(&protocol.Header{Type: protocol.DeclinedPkt, ID: id}, nil)
}

func (c *Client) pushAccepted(id uint8, payload string) {
	var data []byte
	if payload != "" {
		data = []byte(payload)
	}
	c.sendLogged(&protocol.Header{Type: protocol.AcceptedPkt, ID: id}, data)
}

func (c *Client) pushMoved(id uint8, state string) {
	c.sendLogged(&protocol.Header{Type: protocol.MovedPkt, ID: id}, []byte(state))
}

// PushEnded sends the ENDED push for the game at id, with the winning
// role (or protocol.NullRole for a draw). It is exported because the
// service loop sends the self-directed ENDED push only after this
// client's own ACK has gone out, to preserve packet ordering on this
// connection.
func (c *Client) PushEnded(id uint8, winner protocol.Role) {
	c.sendLogged(&protocol.Header{Type: protocol.EndedPkt, ID: id, Role: winner}, nil)
}

// addSlotLocked stores inv/role at the lowest free slot index. c.mu must
// be held.
func (c *Client) addSlotLocked(inv *invitation.Invitation, role protocol.Role) (uint8, error) {
	for i := range c.slots {
		if c.slots[i] == nil {
			c.slots[i] = &slot{inv: inv, role: role}
			c.slotCount++
			return uint8(i), nil
		}
	}
	return 0, ErrSlotTableFull
}

// removeSlotLocked frees slot id. c.mu must be held.
func (c *Client) removeSlotLocked(id uint8) {
	if c.slots[id] != nil {
		c.slots[id] = nil
		c.slotCount--
	}
}

// SlotCount returns the number of live invitation slots, for tests.
func (c *Client) SlotCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slotCount
}

// asClient recovers the concrete *Client behind an invitation.Endpoint.
// Only this package implements that interface, so the assertion is safe.
func asClient(e invitation.Endpoint) *Client {
	return e.(*Client)
}

func otherEndpoint(inv *invitation.Invitation, c *Client) invitation.Endpoint {
	if inv.Source() == invitation.Endpoint(c) {
		return inv.Target()
	}
	return inv.Source()
}

// lockPair locks a and b's slot-table mutexes in ascending serial order,
// so that two clients racing to touch the same pair of slot tables always
// acquire the locks in the same order. It returns the unlock function.
func lockPair(a, b *Client) func() {
	if a == b {
		a.mu.Lock()
		return a.mu.Unlock
	}
	lo, hi := a, b
	if lo.serial > hi.serial {
		lo, hi = hi, lo
	}
	lo.mu.Lock()
	hi.mu.Lock()
	return func() {
		hi.mu.Unlock()
		lo.mu.Unlock()
	}
}

// MakeInvitation creates an invitation from c to target, with target
// playing targetRole (c plays the opposite role). It fails unless both
// clients are logged in. On success it returns the slot id this client
// should use to refer to the new invitation, and pushes INVITED to
// target.
func (c *Client) MakeInvitation(target *Client, targetRole protocol.Role) (uint8, error) {
	if target == c {
		return 0, ErrInviteSelf
	}
	sourceRole := targetRole.Opposite()

	// invitation.New takes each client's own mutex to bump its reference
	// count, so it must run before lockPair, not under it.
	inv, err := invitation.New(c, target, sourceRole, targetRole)
	if err != nil {
		return 0, err
	}

	unlock := lockPair(c, target)

	if c.player == nil || target.player == nil {
		unlock()
		inv.Unref()
		return 0, ErrLoginRequired
	}

	selfID, err := c.addSlotLocked(inv, sourceRole)
	if err != nil {
		unlock()
		inv.Unref()
		return 0, err
	}
	targetID, err := target.addSlotLocked(inv, targetRole)
	if err != nil {
		c.removeSlotLocked(selfID)
		unlock()
		inv.Unref()
		return 0, err
	}
	c.slots[selfID].peerID = targetID
	target.slots[targetID].peerID = selfID
	unlock()

	target.pushInvited(targetID, targetRole, c.Username())
	return selfID, nil
}

// RevokeInvitation closes the open invitation at id, which c must be the
// source of, and pushes REVOKED to the target.
func (c *Client) RevokeInvitation(id uint8) error {
	c.mu.Lock()
	if c.player == nil {
		c.mu.Unlock()
		return ErrLoginRequired
	}
	s := c.slots[id]
	if s == nil {
		c.mu.Unlock()
		return ErrInvitationNotFound
	}
	if s.inv.Source() != invitation.Endpoint(c) {
		c.mu.Unlock()
		return ErrNotInvitationSource
	}
	if s.inv.State() != invitation.Open {
		c.mu.Unlock()
		return ErrInvitationNotOpen
	}
	peerID := s.peerID
	c.removeSlotLocked(id)
	c.mu.Unlock()

	target := asClient(s.inv.Target())
	target.mu.Lock()
	target.removeSlotLocked(peerID)
	target.mu.Unlock()

	_ = s.inv.Close(protocol.NullRole)
	s.inv.Unref()

	target.pushRevoked(peerID)
	return nil
}

// DeclineInvitation closes the open invitation at id, which c must be the
// target of, and pushes DECLINED to the source.
func (c *Client) DeclineInvitation(id uint8) error {
	c.mu.Lock()
	if c.player == nil {
		c.mu.Unlock()
		return ErrLoginRequired
	}
	s := c.slots[id]
	if s == nil {
		c.mu.Unlock()
		return ErrInvitationNotFound
	}
	if s.inv.Target() != invitation.Endpoint(c) {
		c.mu.Unlock()
		return ErrNotInvitationTarget
	}
	if s.inv.State() != invitation.Open {
		c.mu.Unlock()
		return ErrInvitationNotOpen
	}
	peerID := s.peerID
	c.removeSlotLocked(id)
	c.mu.Unlock()

	source := asClient(s.inv.Source())
	source.mu.Lock()
	source.removeSlotLocked(peerID)
	source.mu.Unlock()

	_ = s.inv.Close(protocol.NullRole)
	s.inv.Unref()

	source.pushDeclined(peerID)
	return nil
}

// AcceptInvitation accepts the open invitation at id, which c must be the
// target of, creating its game. It returns the payload this client's own
// ACK should carry: the initial board, if c plays X, otherwise "". The
// source is pushed ACCEPTED, with the same board iff the source plays X.
func (c *Client) AcceptInvitation(id uint8) (string, error) {
	c.mu.Lock()
	if c.player == nil {
		c.mu.Unlock()
		return "", ErrLoginRequired
	}
	s := c.slots[id]
	if s == nil {
		c.mu.Unlock()
		return "", ErrInvitationNotFound
	}
	if s.inv.Target() != invitation.Endpoint(c) {
		c.mu.Unlock()
		return "", ErrNotInvitationTarget
	}
	myRole := s.role
	peerID := s.peerID
	inv := s.inv
	c.mu.Unlock()

	if err := inv.Accept(); err != nil {
		return "", err
	}

	source := asClient(inv.Source())
	board := inv.Game().UnparseState()

	var sourcePayload string
	if inv.SourceRole() == protocol.FirstPlayerRole {
		sourcePayload = board
	}
	source.pushAccepted(peerID, sourcePayload)

	var selfPayload string
	if myRole == protocol.FirstPlayerRole {
		selfPayload = board
	}
	return selfPayload, nil
}

// MakeMove applies moveStr as c's move in the accepted invitation at id.
// It pushes MOVED to the peer, and if the move ends the game, also posts
// the Elo result, closes the invitation, pushes ENDED to the peer, and
// reports gameOver so the caller can push ENDED to this client after its
// own ACK.
func (c *Client) MakeMove(id uint8, moveStr string) (gameOver bool, winner protocol.Role, err error) {
	c.mu.Lock()
	if c.player == nil {
		c.mu.Unlock()
		return false, 0, ErrLoginRequired
	}
	s := c.slots[id]
	if s == nil {
		c.mu.Unlock()
		return false, 0, ErrInvitationNotFound
	}
	if s.inv.State() != invitation.Accepted {
		c.mu.Unlock()
		return false, 0, fmt.Errorf("client: invitation is not in an active game")
	}
	myRole := s.role
	peerID := s.peerID
	inv := s.inv
	c.mu.Unlock()

	g := inv.Game()
	if g == nil {
		return false, 0, ErrGameNotActive
	}

	move, err := g.ParseMove(myRole, moveStr)
	if err != nil {
		return false, 0, err
	}
	if err := g.ApplyMove(move); err != nil {
		return false, 0, err
	}

	peer := asClient(otherEndpoint(inv, c))
	peer.pushMoved(peerID, g.UnparseState())

	if !g.IsOver() {
		return false, 0, nil
	}

	winner = g.Winner()
	peer.PushEnded(peerID, winner)
	finishGame(inv, c, id, peer, peerID)
	return true, winner, nil
}

// ResignGame resigns c's role in the accepted invitation at id. It posts
// the Elo result, closes the invitation, pushes ENDED to the peer, and
// returns the winning role so the caller can push ENDED to this client
// after its own ACK.
func (c *Client) ResignGame(id uint8) (winner protocol.Role, err error) {
	c.mu.Lock()
	if c.player == nil {
		c.mu.Unlock()
		return 0, ErrLoginRequired
	}
	s := c.slots[id]
	if s == nil {
		c.mu.Unlock()
		return 0, ErrInvitationNotFound
	}
	if s.inv.State() != invitation.Accepted {
		c.mu.Unlock()
		return 0, fmt.Errorf("client: invitation is not in an active game")
	}
	myRole := s.role
	peerID := s.peerID
	inv := s.inv
	c.mu.Unlock()

	g := inv.Game()
	if g == nil {
		return 0, ErrGameNotActive
	}
	if err := g.Resign(myRole); err != nil {
		return 0, err
	}

	winner = g.Winner()
	peer := asClient(otherEndpoint(inv, c))
	peer.PushEnded(peerID, winner)
	finishGame(inv, c, id, peer, peerID)
	return winner, nil
}

// finishGame removes a just-terminated game's invitation from both slot
// tables, posts its Elo result, and releases the invitation's own
// reference. It is shared by MakeMove and ResignGame; Logout tears its
// invitations down through closeSlotForLogout instead.
func finishGame(inv *invitation.Invitation, self *Client, selfID uint8, peer *Client, peerID uint8) {
	self.mu.Lock()
	self.removeSlotLocked(selfID)
	self.mu.Unlock()

	peer.mu.Lock()
	peer.removeSlotLocked(peerID)
	peer.mu.Unlock()

	_ = inv.Close(protocol.NullRole)
	settleGame(inv)
	inv.Unref()
}

// settleGame posts the Elo result for a just-terminated game to the
// invitation's source and target players.
func settleGame(inv *invitation.Invitation) {
	g := inv.Game()
	source := asClient(inv.Source())
	target := asClient(inv.Target())

	var result player.Result
	switch {
	case g.Winner() == protocol.NullRole:
		result = player.Draw
	case g.Winner() == inv.SourceRole():
		result = player.FirstPlayerWon
	default:
		result = player.SecondPlayerWon
	}
	player.PostResult(source.Player(), target.Player(), result)
}

// Logout closes every invitation held by this session - revoking or
// declining open ones, resigning active games - detaches the player, and
// returns. It does not close the underlying connection.
func (c *Client) Logout() {
	c.mu.Lock()
	snapshot := make([]struct {
		id uint8
		s  *slot
	}, 0, c.slotCount)
	for i := range c.slots {
		if c.slots[i] != nil {
			snapshot = append(snapshot, struct {
				id uint8
				s  *slot
			}{uint8(i), c.slots[i]})
		}
	}
	c.mu.Unlock()

	for _, entry := range snapshot {
		c.closeSlotForLogout(entry.id, entry.s)
	}

	c.mu.Lock()
	p := c.player
	c.player = nil
	c.mu.Unlock()

	if p != nil {
		p.Unref()
	}
}

func (c *Client) closeSlotForLogout(id uint8, s *slot) {
	c.mu.Lock()
	if c.slots[id] != s {
		// Already torn down concurrently (e.g. the peer revoked it).
		c.mu.Unlock()
		return
	}
	peerID := s.peerID
	c.removeSlotLocked(id)
	c.mu.Unlock()

	peer := asClient(otherEndpoint(s.inv, c))
	peer.mu.Lock()
	peer.removeSlotLocked(peerID)
	peer.mu.Unlock()

	switch s.inv.State() {
	case invitation.Open:
		isSource := s.inv.Source() == invitation.Endpoint(c)
		_ = s.inv.Close(protocol.NullRole)
		if isSource {
			peer.pushRevoked(peerID)
		} else {
			peer.pushDeclined(peerID)
		}
	case invitation.Accepted:
		g := s.inv.Game()
		if g != nil && !g.IsOver() {
			_ = g.Resign(s.role)
			_ = s.inv.Close(protocol.NullRole)
			settleGame(s.inv)
			peer.PushEnded(peerID, g.Winner())
		} else {
			_ = s.inv.Close(protocol.NullRole)
		}
	}
	s.inv.Unref()
}
