package tui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
)

// Renderer draws the jeux client's screens: the logged-in user list, the
// tic-tac-toe board for an active game, and incoming invitation prompts.
type Renderer struct {
	screen *Screen
}

// NewRenderer creates a Renderer drawing to screen.
func NewRenderer(screen *Screen) *Renderer {
	return &Renderer{screen: screen}
}

// User is one row of the lobby's user list.
type User struct {
	Name   string
	Rating int
}

// RenderLobby displays the connected user list and basic instructions.
func (r *Renderer) RenderLobby(self string, users []User, status string) {
	r.screen.Clear()
	w, _ := r.screen.Size()

	title := "=== JEUX ==="
	r.screen.DrawText((w-len(title))/2, 1, title, tcell.StyleDefault.Bold(true))

	r.screen.DrawText(2, 3, fmt.Sprintf("Logged in as %s", self), tcell.StyleDefault.Foreground(tcell.ColorWhite))
	r.screen.DrawText(2, 5, "Players:", tcell.StyleDefault.Foreground(tcell.ColorGray))

	for i, u := range users {
		style := tcell.StyleDefault.Foreground(UsernameColor(u.Name))
		line := fmt.Sprintf("  %-16s %d", u.Name, u.Rating)
		r.screen.DrawText(2, 6+i, line, style)
	}

	if status != "" {
		r.screen.DrawText(2, 7+len(users), status, tcell.StyleDefault.Foreground(tcell.ColorYellow))
	}

	help := "i invite a user (they play X) | q quit"
	r.screen.DrawText(2, 9+len(users), help, tcell.StyleDefault.Foreground(tcell.ColorGray))

	r.screen.Show()
}

// RenderInvitePrompt displays an incoming invitation from source playing
// role, which this client would play the opposite of.
func (r *Renderer) RenderInvitePrompt(source string, role string) {
	w, h := r.screen.Size()
	box := fmt.Sprintf(" %s invites you to play (they are %s) ", source, role)
	x := (w - len(box)) / 2
	y := h / 2
	r.screen.DrawText(x, y, box, tcell.StyleDefault.Foreground(UsernameColor(source)).Bold(true))
	r.screen.DrawText(x, y+1, "a = accept, d = decline", tcell.StyleDefault.Foreground(tcell.ColorGreen))
	r.screen.Show()
}

// RenderBoard renders the tic-tac-toe board (the same three-row,
// dash-separated text the wire protocol carries) with cell coordinates
// overlaid so the player can pick a move.
func (r *Renderer) RenderBoard(opponent string, board string, myTurn bool) {
	r.screen.Clear()
	w, _ := r.screen.Size()

	title := fmt.Sprintf("vs %s", opponent)
	r.screen.DrawText((w-len(title))/2, 1, title, tcell.StyleDefault.Foreground(UsernameColor(opponent)).Bold(true))

	lines := strings.Split(board, "\n")
	startY := 3
	for i, line := range lines {
		r.screen.DrawText(4, startY+i, line, tcell.StyleDefault.Foreground(tcell.ColorWhite))
	}

	status := "Waiting for opponent's move..."
	style := tcell.StyleDefault.Foreground(tcell.ColorGray)
	if myTurn {
		status = "Your move: enter a square (1-9)"
		style = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	}
	r.screen.DrawText(4, startY+len(lines)+1, status, style)
	r.screen.DrawText(4, startY+len(lines)+3, "r = resign", tcell.StyleDefault.Foreground(tcell.ColorGray))

	r.screen.Show()
}

// RenderEnded displays the result of a finished game.
func (r *Renderer) RenderEnded(opponent, result string) {
	r.screen.Clear()
	w, h := r.screen.Size()
	msg := fmt.Sprintf("Game over vs %s: %s", opponent, result)
	r.screen.DrawText((w-len(msg))/2, h/2, msg, tcell.StyleDefault.Bold(true))
	r.screen.DrawText((w-20)/2, h/2+2, "press any key to continue", tcell.StyleDefault.Foreground(tcell.ColorGray))
	r.screen.Show()
}

// RenderError displays a transient error message.
func (r *Renderer) RenderError(msg string) {
	w, h := r.screen.Size()
	r.screen.DrawText((w-len(msg))/2, h-2, msg, tcell.StyleDefault.Foreground(tcell.ColorRed))
	r.screen.Show()
}
