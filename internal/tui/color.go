package tui

import (
	"hash/fnv"

	"github.com/gdamore/tcell/v2"
	"github.com/lucasb-eyer/go-colorful"
)

// UsernameColor picks a stable, perceptually-distinct color for a
// username by hashing it to a hue and walking the HSV wheel, the same
// technique the teacher uses go-colorful for when assigning paddle colors
// — generalized here from a fixed 8-slot palette to an unbounded set of
// usernames.
func UsernameColor(username string) tcell.Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(username))
	hue := float64(h.Sum32()%360)

	c := colorful.Hsv(hue, 0.65, 0.9)
	r, g, b := c.RGB255()
	return tcell.NewRGBColor(int32(r), int32(g), int32(b))
}
