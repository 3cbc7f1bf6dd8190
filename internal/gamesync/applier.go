package gamesync

import (
	"encoding/json"
	"sync"

	"coopwave/internal/game"
	"coopwave/internal/protocol"
)

// Interpolation factors: the fraction of the remaining distance covered
// per applied snapshot. Players smooth harder than enemies; projectiles
// snap outright since they are too short-lived to bother.
const (
	PlayerLerp = 0.4
	EnemyLerp  = 0.5
)

// Applier turns received snapshots into visually-correct local state on
// the guest. Slot binding is by snapshot index, not entity identity:
// pool slot i mirrors whatever entry currently sits at position i.
type Applier struct {
	mu      sync.Mutex
	pending *protocol.StateMessage

	lastPlayers     int
	lastEnemies     int
	lastProjectiles int
}

func NewApplier() *Applier {
	return &Applier{}
}

// OnSnapshot is the subscription handler for game-state messages.
// Snapshots arriving faster than the guest renders overwrite each
// other; only the newest pending one is ever applied.
func (a *Applier) OnSnapshot(raw []byte) {
	var st protocol.StateMessage
	if err := json.Unmarshal(raw, &st); err != nil {
		return
	}
	a.mu.Lock()
	a.pending = &st
	a.mu.Unlock()
}

// ApplyPending applies the newest pending snapshot to the world, if
// any. Called once per guest frame. Returns whether a snapshot was
// applied.
func (a *Applier) ApplyPending(w *game.World) bool {
	a.mu.Lock()
	st := a.pending
	a.pending = nil
	a.mu.Unlock()

	if st == nil {
		return false
	}
	a.Apply(st, w)
	return true
}

// Apply reconciles one snapshot. Re-applying the same snapshot is
// harmless: once a position has converged on its target the lerp is a
// no-op.
func (a *Applier) Apply(st *protocol.StateMessage, w *game.World) {
	// Players keep their slot for the whole session: interpolate
	// position, set health directly (it moves in discrete chunks, there
	// is nothing to smooth).
	n := len(st.Players)
	if n > len(w.Players) {
		n = len(w.Players)
	}
	for i := 0; i < n; i++ {
		sp := st.Players[i]
		p := &w.Players[i]
		p.Active = true
		p.X = lerp(p.X, float64(sp.X), PlayerLerp)
		p.Y = lerp(p.Y, float64(sp.Y), PlayerLerp)
		p.Health = sp.Health
		p.Aim = sp.Aim
	}
	for i := n; i < a.lastPlayers && i < len(w.Players); i++ {
		w.Players[i].Active = false
	}
	a.lastPlayers = n

	// Enemies: indices present in both the previous and the new
	// snapshot interpolate; a slot activating this tick snaps so it
	// doesn't slide in from wherever the last occupant died.
	n = len(st.Enemies)
	if n > len(w.Enemies) {
		n = len(w.Enemies)
	}
	for i := 0; i < n; i++ {
		se := st.Enemies[i]
		e := &w.Enemies[i]
		if i < a.lastEnemies && e.Active {
			e.X = lerp(e.X, float64(se.X), EnemyLerp)
			e.Y = lerp(e.Y, float64(se.Y), EnemyLerp)
		} else {
			e.Active = true
			e.X = float64(se.X)
			e.Y = float64(se.Y)
		}
		e.Kind = se.Kind
		e.Health = se.Health
	}
	for i := n; i < a.lastEnemies && i < len(w.Enemies); i++ {
		w.Enemies[i].Active = false
	}
	a.lastEnemies = n

	// Projectiles always snap.
	n = len(st.Projectiles)
	if n > len(w.Projectiles) {
		n = len(w.Projectiles)
	}
	for i := 0; i < n; i++ {
		sp := st.Projectiles[i]
		pr := &w.Projectiles[i]
		pr.Active = true
		pr.X = float64(sp.X)
		pr.Y = float64(sp.Y)
		pr.Angle = sp.Angle
		pr.Kind = sp.Kind
	}
	for i := n; i < a.lastProjectiles && i < len(w.Projectiles); i++ {
		w.Projectiles[i].Active = false
	}
	a.lastProjectiles = n

	w.Wave = st.Wave
	w.Score = st.Score
	w.Elapsed = float64(st.Elapsed)
}

func lerp(from, to, f float64) float64 {
	return from + (to-from)*f
}
