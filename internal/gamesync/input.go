package gamesync

import (
	"math"
	"time"

	"coopwave/internal/protocol"
)

// Controls is the locally-read control state, sampled once per guest
// frame.
type Controls struct {
	MoveX   int // -1, 0, 1
	MoveY   int
	Aim     float64 // radians
	Fire    bool
	Special bool
}

// InputSender is the slice of the session input forwarding needs.
type InputSender interface {
	SendInput(protocol.InputMessage) (bool, error)
}

// ForwardInput translates controls into the compact wire shape and
// hands them to the session, whose hash dedup suppresses frames whose
// control state didn't change. Returns whether a frame actually went
// out.
func ForwardInput(s InputSender, now time.Time, c Controls) (bool, error) {
	return s.SendInput(protocol.InputMessage{
		T:       now.UnixMilli(),
		MoveX:   clampAxis(c.MoveX),
		MoveY:   clampAxis(c.MoveY),
		Aim:     quantizeAim(c.Aim),
		Fire:    boolFlag(c.Fire),
		Special: boolFlag(c.Special),
	})
}

func clampAxis(v int) int {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

// quantizeAim rounds to two decimals so sub-pixel mouse jitter doesn't
// defeat the dedup hash.
func quantizeAim(a float64) float64 {
	return math.Round(a*100) / 100
}

func boolFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}
