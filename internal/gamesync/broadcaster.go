package gamesync

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"coopwave/internal/game"
	"coopwave/internal/protocol"
)

// BroadcastInterval decouples transmission rate from simulation rate:
// ~30 state pushes per second no matter how fast the game loop runs.
const BroadcastInterval = 33 * time.Millisecond

// Sender is the slice of the session the broadcaster needs.
type Sender interface {
	SendGameState(protocol.StateMessage) error
}

// Broadcaster samples the authoritative world at a fixed cadence and
// pushes capped snapshots. It is a pure sampler: it never mutates the
// simulation, and a dropped send just means the remote view stays stale
// until the next tick.
type Broadcaster struct {
	sender   Sender
	lastSent time.Time

	mu       sync.Mutex
	latest   protocol.InputMessage
	hasInput bool
}

func NewBroadcaster(sender Sender) *Broadcaster {
	return &Broadcaster{sender: sender}
}

// OnInput is the subscription handler for forwarded guest input. Only
// the most recent frame is kept.
func (b *Broadcaster) OnInput(raw []byte) {
	var in protocol.InputMessage
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	b.mu.Lock()
	b.latest = in
	b.hasInput = true
	b.mu.Unlock()
}

// ApplyRemoteInput drives the remote-controlled player's intent from
// the latest forwarded input. Called once per host frame before the
// simulation advances.
func (b *Broadcaster) ApplyRemoteInput(w *game.World) {
	b.mu.Lock()
	in, ok := b.latest, b.hasInput
	b.mu.Unlock()
	if !ok {
		return
	}

	p := &w.Players[1]
	p.IntentX = float64(in.MoveX)
	p.IntentY = float64(in.MoveY)
	p.Aim = in.Aim
	p.Fire = in.Fire == 1
	p.Special = in.Special == 1
}

// Tick transmits a snapshot if the broadcast interval has elapsed since
// the last one; otherwise it does nothing. Returns whether a snapshot
// went out.
func (b *Broadcaster) Tick(now time.Time, w *game.World) bool {
	if now.Sub(b.lastSent) < BroadcastInterval {
		return false
	}
	b.lastSent = now
	b.sender.SendGameState(BuildSnapshot(now, w))
	return true
}

// BuildSnapshot walks each pool in order, taking active entries up to
// the wire caps and rounding coordinates to integers. Entities past a
// cap are omitted for that tick; that loss is deliberate.
func BuildSnapshot(now time.Time, w *game.World) protocol.StateMessage {
	st := protocol.StateMessage{
		T:           now.UnixMilli(),
		Players:     make([]protocol.PlayerSnap, 0, protocol.MaxPlayers),
		Enemies:     make([]protocol.EnemySnap, 0, protocol.MaxEnemies),
		Projectiles: make([]protocol.ProjectileSnap, 0, protocol.MaxProjectiles),
		Wave:        w.Wave,
		Score:       w.Score,
		Elapsed:     int(w.Elapsed),
	}

	for i := range w.Players {
		if len(st.Players) >= protocol.MaxPlayers {
			break
		}
		p := w.Players[i]
		if !p.Active {
			continue
		}
		st.Players = append(st.Players, protocol.PlayerSnap{
			ID: i, X: round(p.X), Y: round(p.Y), Health: p.Health, Aim: p.Aim,
		})
	}

	for i := range w.Enemies {
		if len(st.Enemies) >= protocol.MaxEnemies {
			break
		}
		e := w.Enemies[i]
		if !e.Active {
			continue
		}
		st.Enemies = append(st.Enemies, protocol.EnemySnap{
			Kind: e.Kind, X: round(e.X), Y: round(e.Y), Health: e.Health,
		})
	}

	for i := range w.Projectiles {
		if len(st.Projectiles) >= protocol.MaxProjectiles {
			break
		}
		pr := w.Projectiles[i]
		if !pr.Active {
			continue
		}
		st.Projectiles = append(st.Projectiles, protocol.ProjectileSnap{
			Kind: pr.Kind, X: round(pr.X), Y: round(pr.Y), Angle: pr.Angle,
		})
	}

	return st
}

func round(v float64) int {
	return int(math.Round(v))
}
