// Package session implements the client side of the jeux wire protocol: a
// single in-flight request/ACK exchange with the server, multiplexed on
// the same connection as the server's asynchronous pushes.
package session

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/mkbarrett/jeux/internal/protocol"
)

const (
	channelBufferSize = 16
	connectTimeout    = 5 * time.Second
	requestTimeout    = 5 * time.Second
)

// Invited is delivered when another user invites this client to a game.
type Invited struct {
	ID     uint8
	Role   protocol.Role
	Source string
}

// Accepted is delivered when an invitation this client made is accepted.
// Board is the opening board, present only if this client plays X.
type Accepted struct {
	ID    uint8
	Board string
}

// Moved is delivered when the opponent's move changes the board.
type Moved struct {
	ID    uint8
	Board string
}

// Ended is delivered when a game this client was playing finishes.
type Ended struct {
	ID     uint8
	Winner protocol.Role
}

// Session is a connected, not-yet-necessarily-logged-in client connection.
// Outbound calls (Login, Invite, Move, ...) block for the matching ACK or
// NACK; pushes the server sends asynchronously are delivered on the
// exported channels for the caller's event loop to select on.
type Session struct {
	conn  net.Conn
	codec *protocol.Codec

	mu      sync.Mutex
	pending chan replyOrErr

	Invited  chan Invited
	Revoked  chan uint8
	Accepted chan Accepted
	Declined chan uint8
	Moved    chan Moved
	Ended    chan Ended
	Err      chan error
	done     chan struct{}
}

type replyOrErr struct {
	hdr     *protocol.Header
	payload []byte
	err     error
}

// Dial connects to the server at addr and starts the receive loop.
func Dial(addr string) (*Session, error) {
	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("session: connecting to %s: %w", addr, err)
	}

	s := &Session{
		conn:     conn,
		codec:    protocol.NewCodec(conn),
		pending:  make(chan replyOrErr, 1),
		Invited:  make(chan Invited, channelBufferSize),
		Revoked:  make(chan uint8, channelBufferSize),
		Accepted: make(chan Accepted, channelBufferSize),
		Declined: make(chan uint8, channelBufferSize),
		Moved:    make(chan Moved, channelBufferSize),
		Ended:    make(chan Ended, channelBufferSize),
		Err:      make(chan error, 1),
		done:     make(chan struct{}),
	}
	go s.receiveLoop()
	return s, nil
}

// Close closes the underlying connection.
func (s *Session) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.conn.Close()
}

// receiveLoop reads every frame from the connection, routing ACK/NACK to
// whatever call is currently waiting on s.pending and everything else to
// its push channel.
func (s *Session) receiveLoop() {
	for {
		hdr, payload, err := s.codec.Recv()
		if err != nil {
			select {
			case s.Err <- err:
			default:
			}
			return
		}

		switch hdr.Type {
		case protocol.AckPkt, protocol.NackPkt:
			select {
			case s.pending <- replyOrErr{hdr: hdr, payload: payload}:
			case <-s.done:
				return
			}
		case protocol.InvitedPkt:
			select {
			case s.Invited <- Invited{ID: hdr.ID, Role: hdr.Role, Source: string(payload)}:
			default:
			}
		case protocol.RevokedPkt:
			select {
			case s.Revoked <- hdr.ID:
			default:
			}
		case protocol.AcceptedPkt:
			select {
			case s.Accepted <- Accepted{ID: hdr.ID, Board: string(payload)}:
			default:
			}
		case protocol.DeclinedPkt:
			select {
			case s.Declined <- hdr.ID:
			default:
			}
		case protocol.MovedPkt:
			select {
			case s.Moved <- Moved{ID: hdr.ID, Board: string(payload)}:
			default:
			}
		case protocol.EndedPkt:
			select {
			case s.Ended <- Ended{ID: hdr.ID, Winner: hdr.Role}:
			default:
			}
		}
	}
}

// call sends hdr/payload and blocks for the matching ACK or NACK. Only
// one call may be outstanding at a time; call serializes on s.mu so a
// concurrent caller simply waits its turn.
func (s *Session) call(hdr *protocol.Header, payload []byte) (*protocol.Header, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.codec.Send(hdr, payload); err != nil {
		return nil, nil, fmt.Errorf("session: sending %s: %w", hdr.Type, err)
	}

	select {
	case r := <-s.pending:
		if r.hdr.Type == protocol.NackPkt {
			return nil, nil, fmt.Errorf("session: %s rejected: %s", hdr.Type, string(r.payload))
		}
		return r.hdr, r.payload, nil
	case <-time.After(requestTimeout):
		return nil, nil, fmt.Errorf("session: timed out waiting for reply to %s", hdr.Type)
	case <-s.done:
		return nil, nil, fmt.Errorf("session: closed")
	}
}

// Login logs in as username.
func (s *Session) Login(username string) error {
	_, _, err := s.call(&protocol.Header{Type: protocol.LoginPkt}, []byte(username))
	return err
}

// Users requests the current user listing, one "name\trating" line each.
func (s *Session) Users() (string, error) {
	_, payload, err := s.call(&protocol.Header{Type: protocol.UsersPkt}, nil)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// Invite invites username to play, with username playing role. It
// returns the slot id this session should use to refer to the new
// invitation.
func (s *Session) Invite(username string, role protocol.Role) (uint8, error) {
	hdr, _, err := s.call(&protocol.Header{Type: protocol.InvitePkt, Role: role}, []byte(username))
	if err != nil {
		return 0, err
	}
	return hdr.ID, nil
}

// Revoke revokes the open invitation this session sourced at id.
func (s *Session) Revoke(id uint8) error {
	_, _, err := s.call(&protocol.Header{Type: protocol.RevokePkt, ID: id}, nil)
	return err
}

// Decline declines the open invitation this session was targeted by at id.
func (s *Session) Decline(id uint8) error {
	_, _, err := s.call(&protocol.Header{Type: protocol.DeclinePkt, ID: id}, nil)
	return err
}

// Accept accepts the open invitation at id, returning the opening board
// if this session plays X, or "" if it plays O.
func (s *Session) Accept(id uint8) (string, error) {
	_, payload, err := s.call(&protocol.Header{Type: protocol.AcceptPkt, ID: id}, nil)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// Move submits moveStr (a single digit '1'-'9') as this session's move in
// the active game at id.
func (s *Session) Move(id uint8, moveStr string) error {
	_, _, err := s.call(&protocol.Header{Type: protocol.MovePkt, ID: id}, []byte(moveStr))
	return err
}

// Resign resigns the active game at id.
func (s *Session) Resign(id uint8) error {
	_, _, err := s.call(&protocol.Header{Type: protocol.ResignPkt, ID: id}, nil)
	return err
}
