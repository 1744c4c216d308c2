package invitation

import (
	"testing"

	"github.com/mkbarrett/jeux/internal/protocol"
)

type fakeEndpoint struct {
	name     string
	refCount int
}

func (f *fakeEndpoint) Ref(why string)   { f.refCount++ }
func (f *fakeEndpoint) Unref(why string) { f.refCount-- }
func (f *fakeEndpoint) Username() string { return f.name }

func TestNewRefsBothEndpoints(t *testing.T) {
	src := &fakeEndpoint{name: "alice"}
	tgt := &fakeEndpoint{name: "bob"}

	inv, err := New(src, tgt, protocol.FirstPlayerRole, protocol.SecondRole)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if src.refCount != 1 || tgt.refCount != 1 {
		t.Errorf("refcounts = %d, %d, want 1, 1", src.refCount, tgt.refCount)
	}
	if inv.State() != Open {
		t.Errorf("state = %v, want Open", inv.State())
	}
}

func TestNewRejectsSameEndpoint(t *testing.T) {
	src := &fakeEndpoint{name: "alice"}
	if _, err := New(src, src, protocol.FirstPlayerRole, protocol.SecondRole); err == nil {
		t.Error("expected error when source == target")
	}
}

func TestAcceptCreatesGame(t *testing.T) {
	src := &fakeEndpoint{name: "alice"}
	tgt := &fakeEndpoint{name: "bob"}
	inv, _ := New(src, tgt, protocol.FirstPlayerRole, protocol.SecondRole)

	if err := inv.Accept(); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if inv.State() != Accepted {
		t.Errorf("state = %v, want Accepted", inv.State())
	}
	if inv.Game() == nil {
		t.Error("expected a game to be created")
	}
	if err := inv.Accept(); err == nil {
		t.Error("expected error accepting an already-accepted invitation")
	}
}

func TestCloseWithoutGame(t *testing.T) {
	src := &fakeEndpoint{name: "alice"}
	tgt := &fakeEndpoint{name: "bob"}
	inv, _ := New(src, tgt, protocol.FirstPlayerRole, protocol.SecondRole)

	if err := inv.Close(protocol.NullRole); err != nil {
		t.Fatalf("close: %v", err)
	}
	if inv.State() != Closed {
		t.Errorf("state = %v, want Closed", inv.State())
	}
}

func TestCloseWithGameInProgressRequiresRole(t *testing.T) {
	src := &fakeEndpoint{name: "alice"}
	tgt := &fakeEndpoint{name: "bob"}
	inv, _ := New(src, tgt, protocol.FirstPlayerRole, protocol.SecondRole)
	_ = inv.Accept()

	if err := inv.Close(protocol.NullRole); err == nil {
		t.Error("expected error closing with a game still in progress and no resigning role")
	}

	if err := inv.Close(protocol.FirstPlayerRole); err != nil {
		t.Fatalf("close with role: %v", err)
	}
	if !inv.Game().IsOver() {
		t.Error("expected game to have been resigned")
	}
	if inv.Game().Winner() != protocol.SecondRole {
		t.Errorf("winner = %v, want SecondRole", inv.Game().Winner())
	}
}

func TestUnrefToZeroReleasesEndpoints(t *testing.T) {
	src := &fakeEndpoint{name: "alice"}
	tgt := &fakeEndpoint{name: "bob"}
	inv, _ := New(src, tgt, protocol.FirstPlayerRole, protocol.SecondRole)

	inv.Unref()
	if src.refCount != 0 || tgt.refCount != 0 {
		t.Errorf("refcounts = %d, %d, want 0, 0", src.refCount, tgt.refCount)
	}
}

func TestUnrefPanicsOnUnderflow(t *testing.T) {
	src := &fakeEndpoint{name: "alice"}
	tgt := &fakeEndpoint{name: "bob"}
	inv, _ := New(src, tgt, protocol.FirstPlayerRole, protocol.SecondRole)
	inv.Unref()

	defer func() {
		if recover() == nil {
			t.Error("expected panic on unref below zero")
		}
	}()
	inv.Unref()
}
