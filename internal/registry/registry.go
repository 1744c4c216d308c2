// Package registry tracks every currently-connected Client session and
// every currently-known Player, so that client sessions can look each
// other up by username and the server can wait for a clean shutdown.
package registry

import (
	"errors"
	"sync"

	"github.com/mkbarrett/jeux/internal/client"
	"github.com/mkbarrett/jeux/internal/player"
)

// ErrUsernameTaken is returned by the service loop's LOGIN handling when
// the username is already attached to a different, still-connected
// session.
var ErrUsernameTaken = errors.New("registry: username already logged in")

// ClientRegistry is the set of currently-connected client sessions. A
// session is added when its connection is accepted and removed once it
// disconnects; the registry also exposes a way to wait until every
// session has disconnected, for graceful shutdown.
type ClientRegistry struct {
	mu       sync.Mutex
	sessions map[*client.Client]struct{}
	wg       sync.WaitGroup
	draining bool
}

// NewClientRegistry creates an empty ClientRegistry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{sessions: make(map[*client.Client]struct{})}
}

// Register adds c to the set of live sessions. It fails if the registry
// is draining for shutdown.
func (r *ClientRegistry) Register(c *client.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return errors.New("registry: server is shutting down")
	}
	r.sessions[c] = struct{}{}
	r.wg.Add(1)
	return nil
}

// Unregister removes c from the set of live sessions. It is safe to call
// even if c was never registered (a no-op in that case).
func (r *ClientRegistry) Unregister(c *client.Client) {
	r.mu.Lock()
	_, ok := r.sessions[c]
	if ok {
		delete(r.sessions, c)
	}
	r.mu.Unlock()
	if ok {
		r.wg.Done()
	}
}

// Lookup finds the live session logged in as username, incrementing its
// reference count on success. The caller must Unref it when done.
func (r *ClientRegistry) Lookup(username string) (*client.Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.sessions {
		if c.Username() == username {
			c.Ref("looked up by username")
			return c, true
		}
	}
	return nil, false
}

// Users returns the usernames of every currently logged-in session,
// sorted by nothing in particular — callers that need a stable order
// should sort the result themselves.
func (r *ClientRegistry) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.sessions))
	for c := range r.sessions {
		if name := c.Username(); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ShutdownAll closes the connection of every currently-registered
// session, causing their service loops to observe an I/O error and tear
// themselves down. It does not wait for them to finish; call Wait for
// that.
func (r *ClientRegistry) ShutdownAll() {
	r.mu.Lock()
	r.draining = true
	sessions := make([]*client.Client, 0, len(r.sessions))
	for c := range r.sessions {
		sessions = append(sessions, c)
	}
	r.mu.Unlock()

	for _, c := range sessions {
		c.Close()
	}
}

// Wait blocks until every session that was ever registered has since been
// unregistered.
func (r *ClientRegistry) Wait() {
	r.wg.Wait()
}

// PlayerRegistry maps usernames to their Player, so that logging in under
// the same username twice (at different times) reuses the same rating.
type PlayerRegistry struct {
	mu      sync.Mutex
	players map[string]*player.Player
}

// NewPlayerRegistry creates an empty PlayerRegistry.
func NewPlayerRegistry() *PlayerRegistry {
	return &PlayerRegistry{players: make(map[string]*player.Player)}
}

// Login returns the Player registered under username, creating one with
// the initial rating if this is the first time the name has been seen.
// The returned Player's reference count is incremented on the caller's
// behalf; the caller must Unref it when the session that logged in ends.
func (pr *PlayerRegistry) Login(username string) *player.Player {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	p, ok := pr.players[username]
	if !ok {
		p = player.New(username)
		pr.players[username] = p
		return p.Ref()
	}
	return p.Ref()
}
