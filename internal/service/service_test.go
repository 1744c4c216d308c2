package service

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/mkbarrett/jeux/internal/protocol"
	"github.com/mkbarrett/jeux/internal/registry"
)

// harness drives one simulated connection: Serve runs against one end of a
// net.Pipe, and the test uses a Codec on the other end to play the part of
// a real wire client.
type harness struct {
	codec *protocol.Codec
}

func newHarness(t *testing.T, clients *registry.ClientRegistry, players *registry.PlayerRegistry) *harness {
	t.Helper()
	serverSide, testSide := net.Pipe()
	t.Cleanup(func() { testSide.Close() })
	go Serve(serverSide, clients, players)
	return &harness{codec: protocol.NewCodec(testSide)}
}

func (h *harness) roundTrip(t *testing.T, typ protocol.MessageType, id uint8, role protocol.Role, payload []byte) (*protocol.Header, []byte) {
	t.Helper()
	if err := h.codec.Send(&protocol.Header{Type: typ, ID: id, Role: role}, payload); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
	hdr, reply, err := h.codec.Recv()
	if err != nil {
		t.Fatalf("recv reply to %s: %v", typ, err)
	}
	return hdr, reply
}

func (h *harness) login(t *testing.T, username string) {
	t.Helper()
	hdr, _ := h.roundTrip(t, protocol.LoginPkt, 0, protocol.NullRole, []byte(username))
	if hdr.Type != protocol.AckPkt {
		t.Fatalf("login %s: got %s, want ACK", username, hdr.Type)
	}
}

func newRegistries() (*registry.ClientRegistry, *registry.PlayerRegistry) {
	return registry.NewClientRegistry(), registry.NewPlayerRegistry()
}

func TestLoginAndUsers(t *testing.T) {
	clients, players := newRegistries()
	a := newHarness(t, clients, players)
	b := newHarness(t, clients, players)

	a.login(t, "alice")
	b.login(t, "bob")

	hdr, payload := b.roundTrip(t, protocol.UsersPkt, 0, protocol.NullRole, nil)
	if hdr.Type != protocol.AckPkt {
		t.Fatalf("users: got %s, want ACK", hdr.Type)
	}
	body := string(payload)
	if !strings.Contains(body, "alice\t1500") || !strings.Contains(body, "bob\t1500") {
		t.Errorf("users payload = %q, want lines for alice and bob at 1500", body)
	}
}

func TestDuplicateLoginRejected(t *testing.T) {
	clients, players := newRegistries()
	a := newHarness(t, clients, players)
	a.login(t, "alice")

	hdr, _ := a.roundTrip(t, protocol.LoginPkt, 0, protocol.NullRole, []byte("alice2"))
	if hdr.Type != protocol.NackPkt {
		t.Errorf("second login: got %s, want NACK", hdr.Type)
	}
}

func TestUsernameCollisionRejected(t *testing.T) {
	clients, players := newRegistries()
	a := newHarness(t, clients, players)
	b := newHarness(t, clients, players)
	a.login(t, "alice")

	hdr, _ := b.roundTrip(t, protocol.LoginPkt, 0, protocol.NullRole, []byte("alice"))
	if hdr.Type != protocol.NackPkt {
		t.Errorf("colliding login: got %s, want NACK", hdr.Type)
	}
}

func TestNonLoginBeforeLoginRejected(t *testing.T) {
	clients, players := newRegistries()
	a := newHarness(t, clients, players)

	hdr, _ := a.roundTrip(t, protocol.UsersPkt, 0, protocol.NullRole, nil)
	if hdr.Type != protocol.NackPkt {
		t.Errorf("pre-login USERS: got %s, want NACK", hdr.Type)
	}
}

// TestFullGameXWins plays out scenario S2 from end to end: invite, accept,
// alternating moves to an X win, and the Elo update that follows.
func TestFullGameXWins(t *testing.T) {
	clients, players := newRegistries()
	a := newHarness(t, clients, players) // alice, will invite bob to play O (so alice is X)
	b := newHarness(t, clients, players) // bob

	a.login(t, "alice")
	b.login(t, "bob")

	// The pipe is unbuffered and the server pushes INVITED to bob before
	// it ACKs alice, so bob's reader must already be waiting.
	var invitedHdr *protocol.Header
	var invitedPayload []byte
	var err error
	invitedDone := make(chan struct{})
	go func() {
		invitedHdr, invitedPayload, err = b.codec.Recv()
		close(invitedDone)
	}()

	inviteHdr, _ := a.roundTrip(t, protocol.InvitePkt, 0, protocol.SecondPlayerRole, []byte("bob"))
	if inviteHdr.Type != protocol.AckPkt {
		t.Fatalf("invite: got %s, want ACK", inviteHdr.Type)
	}
	aSlot := inviteHdr.ID

	<-invitedDone
	if err != nil {
		t.Fatalf("recv INVITED: %v", err)
	}
	if invitedHdr.Type != protocol.InvitedPkt || string(invitedPayload) != "alice" {
		t.Fatalf("INVITED = %+v %q, want role=O payload=alice", invitedHdr, invitedPayload)
	}
	bSlot := invitedHdr.ID

	// Likewise ACCEPTED is pushed to alice before bob's ACK.
	var acceptedHdr *protocol.Header
	var acceptedPayload []byte
	acceptedDone := make(chan struct{})
	go func() {
		acceptedHdr, acceptedPayload, err = a.codec.Recv()
		close(acceptedDone)
	}()

	acceptHdr, acceptPayload := b.roundTrip(t, protocol.AcceptPkt, bSlot, protocol.NullRole, nil)
	if acceptHdr.Type != protocol.AckPkt || len(acceptPayload) != 0 {
		t.Fatalf("accept ack = %+v %q, want ACK with empty payload (bob plays O)", acceptHdr, acceptPayload)
	}

	<-acceptedDone
	if err != nil {
		t.Fatalf("recv ACCEPTED: %v", err)
	}
	if acceptedHdr.Type != protocol.AcceptedPkt || len(acceptedPayload) == 0 {
		t.Fatalf("ACCEPTED = %+v, want non-empty board (alice plays X)", acceptedHdr)
	}

	// A(X): 1, B(O): 5, A: 2, B: 6, A: 3 -> X wins the top row.
	moves := []struct {
		actor *harness
		slot  uint8
		box   string
	}{
		{a, aSlot, "1"},
		{b, bSlot, "5"},
		{a, aSlot, "2"},
		{b, bSlot, "6"},
	}
	for _, m := range moves {
		peer := a
		if m.actor == a {
			peer = b
		}
		done := make(chan struct{})
		var movedHdr *protocol.Header
		go func() {
			movedHdr, _, _ = peer.codec.Recv()
			close(done)
		}()
		hdr, _ := m.actor.roundTrip(t, protocol.MovePkt, m.slot, protocol.NullRole, []byte(m.box))
		if hdr.Type != protocol.AckPkt {
			t.Fatalf("move %s ack: got %s", m.box, hdr.Type)
		}
		<-done
		if movedHdr.Type != protocol.MovedPkt {
			t.Fatalf("peer did not receive MOVED after move %s, got %s", m.box, movedHdr.Type)
		}
	}

	// Final winning move for A: both sides must see ENDED(role=X).
	doneB := make(chan *protocol.Header)
	go func() {
		_, _, _ = b.codec.Recv() // MOVED
		hdr, _, _ := b.codec.Recv()
		doneB <- hdr
	}()
	doneA := make(chan *protocol.Header)
	go func() {
		ackHdr, _, _ := a.codec.Recv() // ACK for the move
		if ackHdr.Type != protocol.AckPkt {
			doneA <- ackHdr
			return
		}
		endedHdr, _, _ := a.codec.Recv()
		doneA <- endedHdr
	}()

	if err := a.codec.Send(&protocol.Header{Type: protocol.MovePkt, ID: aSlot}, []byte("3")); err != nil {
		t.Fatalf("send winning move: %v", err)
	}

	select {
	case hdr := <-doneB:
		if hdr == nil || hdr.Type != protocol.EndedPkt || hdr.Role != protocol.FirstPlayerRole {
			t.Fatalf("bob's ENDED = %+v, want ENDED role=X", hdr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for bob's ENDED")
	}
	select {
	case hdr := <-doneA:
		if hdr == nil || hdr.Type != protocol.EndedPkt || hdr.Role != protocol.FirstPlayerRole {
			t.Fatalf("alice's ENDED = %+v, want ENDED role=X", hdr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for alice's ENDED")
	}

	// Equal 1500 ratings: the winner gains 16 and the loser drops 16.
	alice, bob := players.Login("alice"), players.Login("bob")
	if alice.Rating() != 1516 || bob.Rating() != 1484 {
		t.Errorf("ratings after game = alice %d, bob %d, want 1516, 1484", alice.Rating(), bob.Rating())
	}
}
