package game

import "math"

const (
	WorldSize       = 800.0
	PlayerMaxHealth = 100
	PlayerSpeed     = 160.0 // px per second
	EnemySpeed      = 60.0
	ProjectileSpeed = 320.0

	// Pool capacities. These are simulation-side bounds and may exceed
	// what ever goes on the wire; the broadcaster caps independently.
	EnemyPool      = 64
	ProjectilePool = 32
)

// Player is one of the two co-op players. Intent holds the latest
// control state driving it; on the host the remote player's intent is
// fed from forwarded input messages.
type Player struct {
	X, Y    float64
	Aim     float64
	Health  int
	Active  bool
	IntentX float64 // -1, 0, 1
	IntentY float64
	Fire    bool
	Special bool
}

type Enemy struct {
	Kind   int
	X, Y   float64
	Health int
	Active bool
}

type Projectile struct {
	Kind   int
	X, Y   float64
	Angle  float64
	Active bool
}

// World is the pool-backed entity state shared by both sides: the host
// advances it authoritatively, the guest only mirrors it.
type World struct {
	Players     [2]Player
	Enemies     []Enemy
	Projectiles []Projectile
	Wave        int
	Score       int
	Elapsed     float64 // seconds
}

func NewWorld() *World {
	w := &World{
		Enemies:     make([]Enemy, EnemyPool),
		Projectiles: make([]Projectile, ProjectilePool),
		Wave:        1,
	}
	w.Players[0] = Player{X: 300, Y: 400, Health: PlayerMaxHealth, Active: true}
	w.Players[1] = Player{X: 500, Y: 400, Health: PlayerMaxHealth, Active: true}
	return w
}

// SpawnEnemy activates the first free enemy slot and returns its index,
// or -1 when the pool is exhausted.
func (w *World) SpawnEnemy(kind int, x, y float64, health int) int {
	for i := range w.Enemies {
		if !w.Enemies[i].Active {
			w.Enemies[i] = Enemy{Kind: kind, X: x, Y: y, Health: health, Active: true}
			return i
		}
	}
	return -1
}

// SpawnProjectile activates the first free projectile slot and returns
// its index, or -1 when the pool is exhausted.
func (w *World) SpawnProjectile(kind int, x, y, angle float64) int {
	for i := range w.Projectiles {
		if !w.Projectiles[i].Active {
			w.Projectiles[i] = Projectile{Kind: kind, X: x, Y: y, Angle: angle, Active: true}
			return i
		}
	}
	return -1
}

// Advance steps the demo simulation. Combat depth lives outside this
// module; this is just enough motion to exercise the sync path.
func (w *World) Advance(dt float64) {
	w.Elapsed += dt

	for i := range w.Players {
		p := &w.Players[i]
		if !p.Active {
			continue
		}
		p.X = clamp(p.X+p.IntentX*PlayerSpeed*dt, 0, WorldSize)
		p.Y = clamp(p.Y+p.IntentY*PlayerSpeed*dt, 0, WorldSize)
	}

	for i := range w.Enemies {
		e := &w.Enemies[i]
		if !e.Active {
			continue
		}
		tx, ty := w.nearestPlayer(e.X, e.Y)
		dx, dy := tx-e.X, ty-e.Y
		dist := math.Hypot(dx, dy)
		if dist > 1 {
			e.X += dx / dist * EnemySpeed * dt
			e.Y += dy / dist * EnemySpeed * dt
		}
	}

	for i := range w.Projectiles {
		pr := &w.Projectiles[i]
		if !pr.Active {
			continue
		}
		pr.X += math.Cos(pr.Angle) * ProjectileSpeed * dt
		pr.Y += math.Sin(pr.Angle) * ProjectileSpeed * dt
		if pr.X < 0 || pr.X > WorldSize || pr.Y < 0 || pr.Y > WorldSize {
			pr.Active = false
		}
	}
}

func (w *World) nearestPlayer(x, y float64) (float64, float64) {
	bestX, bestY := w.Players[0].X, w.Players[0].Y
	best := math.MaxFloat64
	for i := range w.Players {
		p := w.Players[i]
		if !p.Active {
			continue
		}
		d := math.Hypot(p.X-x, p.Y-y)
		if d < best {
			best, bestX, bestY = d, p.X, p.Y
		}
	}
	return bestX, bestY
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
