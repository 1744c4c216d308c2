package registry

import (
	"net"
	"testing"

	"github.com/mkbarrett/jeux/internal/client"
)

func newSession(t *testing.T) *client.Client {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return client.New(a)
}

func TestRegisterLookupUnregister(t *testing.T) {
	r := NewClientRegistry()
	c := newSession(t)
	if err := r.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := c.Login(NewPlayerRegistry().Login("alice")); err != nil {
		t.Fatalf("login: %v", err)
	}

	found, ok := r.Lookup("alice")
	if !ok || found != c {
		t.Fatalf("lookup alice: ok=%v found=%v", ok, found)
	}
	found.Unref("test lookup done")

	r.Unregister(c)
	if _, ok := r.Lookup("alice"); ok {
		t.Error("expected alice to be gone after unregister")
	}
}

func TestWaitReturnsAfterAllUnregistered(t *testing.T) {
	r := NewClientRegistry()
	c1, c2 := newSession(t), newSession(t)
	_ = r.Register(c1)
	_ = r.Register(c2)

	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()

	r.Unregister(c1)
	select {
	case <-done:
		t.Fatal("Wait returned before all sessions unregistered")
	default:
	}

	r.Unregister(c2)
	<-done
}

func TestPlayerRegistryReusesPlayerAcrossLogins(t *testing.T) {
	pr := NewPlayerRegistry()
	p1 := pr.Login("alice")
	p1.Ref() // simulate a second concurrent owner before logout
	p1.Unref()

	p2 := pr.Login("alice")
	if p1.Serial() != p2.Serial() {
		t.Error("expected the same underlying player on a repeat login")
	}
	if p2.RefCount() < 2 {
		t.Errorf("refcount = %d, want at least 2 after two logins", p2.RefCount())
	}
}

func TestPlayerRegistryLoginRetainsRefOnCreation(t *testing.T) {
	pr := NewPlayerRegistry()
	p := pr.Login("alice")
	if got := p.RefCount(); got != 2 {
		t.Errorf("refcount after first login = %d, want 2 (one for the registry, one for the caller)", got)
	}
	p.Unref()
}

func TestClientLoginLogoutRoundTripLeavesNoDanglingRef(t *testing.T) {
	pr := NewPlayerRegistry()
	c := newSession(t)

	p := pr.Login("alice")
	before := p.RefCount()
	if err := c.Login(p); err != nil {
		t.Fatalf("login: %v", err)
	}

	c.Logout()
	if got := p.RefCount(); got != before-1 {
		t.Errorf("refcount after logout = %d, want %d", got, before-1)
	}

	c2 := newSession(t)
	p2 := pr.Login("alice")
	if err := c2.Login(p2); err != nil {
		t.Fatalf("second login: %v", err)
	}
	c2.Logout()
	if got := p2.RefCount(); got != before-1 {
		t.Errorf("refcount after second round trip = %d, want it to return to baseline %d", got, before-1)
	}
}
