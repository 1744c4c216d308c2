// Package service implements the per-connection service loop: register
// with the client registry, repeatedly receive a frame and dispatch it to
// the session's Client methods, and reply with ACK or NACK.
package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strings"

	"github.com/mkbarrett/jeux/internal/client"
	"github.com/mkbarrett/jeux/internal/protocol"
	"github.com/mkbarrett/jeux/internal/registry"
)

// Serve runs the service loop for conn until the connection fails or is
// closed, then tears down the session's state and returns. It is meant to
// be run as its own goroutine per accepted connection.
func Serve(conn net.Conn, clients *registry.ClientRegistry, players *registry.PlayerRegistry) {
	c := client.New(conn)
	if err := clients.Register(c); err != nil {
		slog.Warn("rejecting connection, registry unavailable", "err", err)
		conn.Close()
		return
	}
	defer func() {
		if c.IsLoggedIn() {
			c.Logout()
		}
		clients.Unregister(c)
		conn.Close()
	}()

	for {
		hdr, payload, err := c.Codec().Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				slog.Warn("recv failed, closing connection", "err", err)
			}
			return
		}

		result, handleErr := dispatch(c, clients, players, hdr, payload)
		if handleErr != nil {
			if err := c.Send(&protocol.Header{Type: protocol.NackPkt, ID: hdr.ID}, []byte(handleErr.Error())); err != nil {
				return
			}
			continue
		}

		if err := c.Send(result.ack, result.ackPayload); err != nil {
			return
		}

		// The self-directed ENDED push for a game this client's own move
		// or resignation just finished must go out after its ACK, to
		// preserve in-order delivery on this connection.
		if result.selfEnded {
			c.PushEnded(hdr.ID, result.winner)
		}
	}
}

// dispatchResult carries the ACK to send for a successfully handled
// request, plus an optional self-directed ENDED push the caller must send
// immediately afterward.
type dispatchResult struct {
	ack        *protocol.Header
	ackPayload []byte
	selfEnded  bool
	winner     protocol.Role
}

func ackOnly(id uint8) (dispatchResult, error) {
	return dispatchResult{ack: &protocol.Header{Type: protocol.AckPkt, ID: id}}, nil
}

// dispatch handles one inbound frame and returns the reply to send on
// success, or a non-nil error to turn into a NACK.
func dispatch(c *client.Client, clients *registry.ClientRegistry, players *registry.PlayerRegistry, hdr *protocol.Header, payload []byte) (dispatchResult, error) {
	if !c.IsLoggedIn() && hdr.Type != protocol.LoginPkt {
		return dispatchResult{}, fmt.Errorf("login required")
	}
	if c.IsLoggedIn() && hdr.Type == protocol.LoginPkt {
		return dispatchResult{}, fmt.Errorf("already logged in")
	}

	switch hdr.Type {
	case protocol.LoginPkt:
		return handleLogin(c, clients, players, hdr, payload)
	case protocol.UsersPkt:
		return handleUsers(clients, hdr)
	case protocol.InvitePkt:
		return handleInvite(c, clients, hdr, payload)
	case protocol.RevokePkt:
		if err := c.RevokeInvitation(hdr.ID); err != nil {
			return dispatchResult{}, err
		}
		return ackOnly(hdr.ID)
	case protocol.DeclinePkt:
		if err := c.DeclineInvitation(hdr.ID); err != nil {
			return dispatchResult{}, err
		}
		return ackOnly(hdr.ID)
	case protocol.AcceptPkt:
		board, err := c.AcceptInvitation(hdr.ID)
		if err != nil {
			return dispatchResult{}, err
		}
		var data []byte
		if board != "" {
			data = []byte(board)
		}
		return dispatchResult{ack: &protocol.Header{Type: protocol.AckPkt, ID: hdr.ID}, ackPayload: data}, nil
	case protocol.MovePkt:
		return handleMove(c, hdr, payload)
	case protocol.ResignPkt:
		return handleResign(c, hdr)
	default:
		return dispatchResult{}, fmt.Errorf("unknown packet type %s", hdr.Type)
	}
}

func handleLogin(c *client.Client, clients *registry.ClientRegistry, players *registry.PlayerRegistry, hdr *protocol.Header, payload []byte) (dispatchResult, error) {
	username := strings.TrimSpace(string(payload))
	if username == "" {
		return dispatchResult{}, fmt.Errorf("empty username")
	}
	if existing, ok := clients.Lookup(username); ok {
		existing.Unref("login collision check")
		return dispatchResult{}, registry.ErrUsernameTaken
	}

	p := players.Login(username)
	if err := c.Login(p); err != nil {
		p.Unref()
		return dispatchResult{}, err
	}
	return ackOnly(hdr.ID)
}

func handleUsers(clients *registry.ClientRegistry, hdr *protocol.Header) (dispatchResult, error) {
	names := clients.Users()
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		peer, ok := clients.Lookup(name)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s\t%d\n", name, peer.Player().Rating())
		peer.Unref("users listing done")
	}
	return dispatchResult{ack: &protocol.Header{Type: protocol.AckPkt, ID: hdr.ID}, ackPayload: []byte(b.String())}, nil
}

func handleInvite(c *client.Client, clients *registry.ClientRegistry, hdr *protocol.Header, payload []byte) (dispatchResult, error) {
	targetName := string(payload)
	targetRole := hdr.Role
	if targetRole != protocol.FirstPlayerRole && targetRole != protocol.SecondPlayerRole {
		return dispatchResult{}, fmt.Errorf("invite role must be X or O")
	}

	target, ok := clients.Lookup(targetName)
	if !ok {
		return dispatchResult{}, fmt.Errorf("no such user %q", targetName)
	}
	defer target.Unref("invite lookup done")

	selfID, err := c.MakeInvitation(target, targetRole)
	if err != nil {
		return dispatchResult{}, err
	}
	return ackOnly(selfID)
}

func handleMove(c *client.Client, hdr *protocol.Header, payload []byte) (dispatchResult, error) {
	gameOver, winner, err := c.MakeMove(hdr.ID, string(payload))
	if err != nil {
		return dispatchResult{}, err
	}
	return dispatchResult{
		ack:       &protocol.Header{Type: protocol.AckPkt, ID: hdr.ID},
		selfEnded: gameOver,
		winner:    winner,
	}, nil
}

func handleResign(c *client.Client, hdr *protocol.Header) (dispatchResult, error) {
	winner, err := c.ResignGame(hdr.ID)
	if err != nil {
		return dispatchResult{}, err
	}
	return dispatchResult{
		ack:       &protocol.Header{Type: protocol.AckPkt, ID: hdr.ID},
		selfEnded: true,
		winner:    winner,
	}, nil
}
