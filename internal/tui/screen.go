// Package tui implements the jeux client's terminal renderer: a tic-tac-toe
// board, a user list, and invitation/game prompts, drawn with tcell.
package tui

import "github.com/gdamore/tcell/v2"

// Screen is a thin wrapper around a tcell.Screen, grounded on the
// teacher's own screen abstraction, generalized from a fixed pong court to
// arbitrary line-oriented panels.
type Screen struct {
	screen tcell.Screen
}

// NewScreen wraps an already-initialized tcell.Screen.
func NewScreen(s tcell.Screen) *Screen {
	return &Screen{screen: s}
}

// InitScreen creates and initializes a new tcell.Screen for the current
// terminal.
func InitScreen() (*Screen, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return NewScreen(s), nil
}

func (s *Screen) Size() (int, int)    { return s.screen.Size() }
func (s *Screen) Clear()              { s.screen.Clear() }
func (s *Screen) Show()               { s.screen.Show() }
func (s *Screen) Fini()               { s.screen.Fini() }
func (s *Screen) PollEvent() tcell.Event { return s.screen.PollEvent() }

func (s *Screen) SetCell(x, y int, style tcell.Style, r rune) {
	s.screen.SetContent(x, y, r, nil, style)
}

func (s *Screen) DrawText(x, y int, text string, style tcell.Style) {
	for i, r := range text {
		s.screen.SetContent(x+i, y, r, nil, style)
	}
}

func (s *Screen) DrawBox(x, y, w, h int, style tcell.Style) {
	const (
		topLeft     = '┌'
		topRight    = '┐'
		bottomLeft  = '└'
		bottomRight = '┘'
		horizontal  = '─'
		vertical    = '│'
	)
	s.screen.SetContent(x, y, topLeft, nil, style)
	s.screen.SetContent(x+w-1, y, topRight, nil, style)
	s.screen.SetContent(x, y+h-1, bottomLeft, nil, style)
	s.screen.SetContent(x+w-1, y+h-1, bottomRight, nil, style)
	for i := x + 1; i < x+w-1; i++ {
		s.screen.SetContent(i, y, horizontal, nil, style)
		s.screen.SetContent(i, y+h-1, horizontal, nil, style)
	}
	for j := y + 1; j < y+h-1; j++ {
		s.screen.SetContent(x, j, vertical, nil, style)
		s.screen.SetContent(x+w-1, j, vertical, nil, style)
	}
}

// IsQuitKey reports whether the key event should exit the client.
func IsQuitKey(key tcell.Key, r rune) bool {
	if key == tcell.KeyEscape || key == tcell.KeyCtrlC {
		return true
	}
	return key == tcell.KeyRune && (r == 'q' || r == 'Q')
}
