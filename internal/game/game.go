// Package game implements a single tic-tac-toe match: board state, move
// legality, and win/draw detection.
package game

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mkbarrett/jeux/internal/protocol"
)

var serialCounter uint64

func nextSerial() uint64 {
	return atomic.AddUint64(&serialCounter, 1)
}

// Cell is the mark occupying one square of the board.
type Cell int8

const (
	Empty Cell = 0
	X     Cell = -1
	O     Cell = 1
)

func cellForRole(role protocol.Role) Cell {
	if role == protocol.FirstPlayerRole {
		return X
	}
	return O
}

func (c Cell) rune() rune {
	switch c {
	case X:
		return 'X'
	case O:
		return 'O'
	default:
		return ' '
	}
}

// Move is an immutable request to place the mark of Role in square Box,
// numbered 1-9 left-to-right, top-to-bottom.
type Move struct {
	Box  int
	Role protocol.Role
}

// Game is the mutable state of one tic-tac-toe match between two roles.
// Games are reference counted the same way Invitations are: the one
// reference is held by the Invitation that created the Game, and is
// released when that Invitation is freed.
type Game struct {
	serial uint64
	mu     sync.Mutex

	board      [9]Cell
	current    protocol.Role
	winner     protocol.Role
	terminated bool
	refCount   int
}

// winningLines enumerates the eight index triples that end a game.
var winningLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

// New creates a Game in its initial state, with the first player's role
// to move. The returned Game has a reference count of one.
func New() *Game {
	return &Game{
		serial:   nextSerial(),
		current:  protocol.FirstPlayerRole,
		refCount: 1,
	}
}

// Serial returns the game's process-lifetime-unique identity, used only to
// produce a total lock-acquisition order between entities.
func (g *Game) Serial() uint64 {
	return g.serial
}

// Ref increments the reference count and returns g.
func (g *Game) Ref() *Game {
	g.mu.Lock()
	g.refCount++
	g.mu.Unlock()
	return g
}

// Unref decrements the reference count.
func (g *Game) Unref() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refCount <= 0 {
		panic("game: unref of game with non-positive reference count")
	}
	g.refCount--
}

// RefCount returns the current reference count, for tests.
func (g *Game) RefCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refCount
}

// ApplyMove applies move to the game. It fails if the game is already
// over, if it isn't move.Role's turn, or if the targeted square is
// already occupied.
func (g *Game) ApplyMove(move Move) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.terminated {
		return fmt.Errorf("game: move submitted after game ended")
	}
	if move.Role != g.current {
		return fmt.Errorf("game: move is out of turn")
	}
	if move.Box < 1 || move.Box > 9 {
		return fmt.Errorf("game: move box %d out of range", move.Box)
	}
	idx := move.Box - 1
	if g.board[idx] != Empty {
		return fmt.Errorf("game: square %d is already occupied", move.Box)
	}

	g.board[idx] = cellForRole(move.Role)
	g.current = move.Role.Opposite()
	g.evaluate()
	return nil
}

// evaluate updates winner/terminated after a move has been placed. The
// caller must hold g.mu.
func (g *Game) evaluate() {
	for _, line := range winningLines {
		sum := int(g.board[line[0]]) + int(g.board[line[1]]) + int(g.board[line[2]])
		switch sum {
		case 3:
			g.winner = protocol.SecondRole
		case -3:
			g.winner = protocol.FirstPlayerRole
		}
	}

	full := true
	for _, c := range g.board {
		if c == Empty {
			full = false
			break
		}
	}

	if g.winner != protocol.NullRole || full {
		g.current = protocol.NullRole
		g.terminated = true
	}
}

// Resign ends the game with role as the resigning (losing) party. It fails
// if the game has already terminated.
func (g *Game) Resign(role protocol.Role) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.terminated {
		return fmt.Errorf("game: resignation submitted after game ended")
	}
	g.current = protocol.NullRole
	g.winner = role.Opposite()
	g.terminated = true
	return nil
}

// IsOver reports whether the game has ended, by win, draw, or resignation.
func (g *Game) IsOver() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.terminated
}

// Winner returns the winning role, or NullRole if the game is still in
// progress or ended in a draw.
func (g *Game) Winner() protocol.Role {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.winner
}

// CurrentPlayer returns the role on the move, or NullRole once the game
// has ended.
func (g *Game) CurrentPlayer() protocol.Role {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// ParseMove interprets str (a single digit '1'-'9') as a move by role. If
// role is not NullRole, it must match the role currently on the move.
func (g *Game) ParseMove(role protocol.Role, str string) (Move, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if role != protocol.NullRole && role != g.current {
		return Move{}, fmt.Errorf("game: %s is not the player on the move", role)
	}
	if len(str) != 1 || str[0] < '1' || str[0] > '9' {
		return Move{}, fmt.Errorf("game: %q is not a move in 1-9", str)
	}
	return Move{Box: int(str[0] - '0'), Role: role}, nil
}

// UnparseMove renders move in the same format ParseMove accepts.
func UnparseMove(move Move) string {
	return string(rune('0' + move.Box))
}

// UnparseState renders a human-readable rendition of the board, in the
// same three-row, dash-separated layout the original server used, with a
// trailing line naming whose move it is.
func (g *Game) UnparseState() string {
	g.mu.Lock()
	board := g.board
	current := g.current
	g.mu.Unlock()

	out := ""
	for row := 0; row < 3; row++ {
		if row > 0 {
			out += "-----\n"
		}
		for col := 0; col < 3; col++ {
			out += string(board[row*3+col].rune())
			if col < 2 {
				out += "|"
			}
		}
		out += "\n"
	}

	switch current {
	case protocol.FirstPlayerRole:
		out += "X to move"
	case protocol.SecondRole:
		out += "O to move"
	}
	return out
}
