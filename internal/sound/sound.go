// Package sound plays short notification chimes for the asynchronous
// pushes a jeux client receives: an incoming invitation, an accepted
// game, an opponent's move, and a finished game.
package sound

import (
	"math"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

const sampleRate = beep.SampleRate(44100)

var initialized bool

// Init opens the speaker device. It is safe to call more than once.
func Init() error {
	if initialized {
		return nil
	}
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/30)); err != nil {
		return err
	}
	initialized = true
	return nil
}

// Close shuts down the speaker device.
func Close() {
	if initialized {
		speaker.Close()
		initialized = false
	}
}

func tone(freq float64, duration time.Duration) beep.Streamer {
	numSamples := sampleRate.N(duration)
	phase := 0.0
	phaseStep := 2 * math.Pi * freq / float64(sampleRate)

	return beep.StreamerFunc(func(samples [][2]float64) (n int, ok bool) {
		for i := range samples {
			if numSamples <= 0 {
				return i, false
			}
			val := math.Sin(phase) * 0.25
			samples[i][0] = val
			samples[i][1] = val
			phase += phaseStep
			numSamples--
		}
		return len(samples), true
	})
}

// PlayInvited chimes when another player sends an invitation.
func PlayInvited() {
	if !initialized {
		return
	}
	speaker.Play(tone(660, 120*time.Millisecond))
}

// PlayAccepted chimes when an invitation is accepted and a game starts.
func PlayAccepted() {
	if !initialized {
		return
	}
	go func() {
		speaker.Play(tone(440, 90*time.Millisecond))
		time.Sleep(90 * time.Millisecond)
		speaker.Play(tone(660, 120*time.Millisecond))
	}()
}

// PlayMoved chimes when the opponent's move arrives.
func PlayMoved() {
	if !initialized {
		return
	}
	speaker.Play(tone(523, 60*time.Millisecond))
}

// PlayEnded chimes when a game ends, at a different pitch for a win,
// loss, or draw from this player's perspective.
func PlayEnded(won, drew bool) {
	if !initialized {
		return
	}
	switch {
	case drew:
		speaker.Play(tone(392, 200*time.Millisecond))
	case won:
		go func() {
			speaker.Play(tone(523, 100*time.Millisecond))
			time.Sleep(100 * time.Millisecond)
			speaker.Play(tone(784, 200*time.Millisecond))
		}()
	default:
		go func() {
			speaker.Play(tone(392, 150*time.Millisecond))
			time.Sleep(150 * time.Millisecond)
			speaker.Play(tone(262, 250*time.Millisecond))
		}()
	}
}
