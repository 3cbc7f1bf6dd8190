package protocol

// Hard caps on snapshot array lengths, applied at emission time. These
// are a deliberate lossy compression: when the simulation runs hotter
// than a cap, later pool entries are simply omitted that tick.
const (
	MaxPlayers     = 2
	MaxEnemies     = 30
	MaxProjectiles = 20
)

// PlayerSnap is one player entry in a state snapshot. Coordinates and
// health are rounded to integers before emission.
//   {"i":0,"x":412,"y":310,"h":87,"a":1.57}
type PlayerSnap struct {
	ID     int     `json:"i"`
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Health int     `json:"h"`
	Aim    float64 `json:"a"`
}

// EnemySnap identifies an enemy by slot kind rather than a stable
// entity id; the guest binds it to the pool slot at the same index.
//   {"k":2,"x":120,"y":88,"h":40}
type EnemySnap struct {
	Kind   int `json:"k"`
	X      int `json:"x"`
	Y      int `json:"y"`
	Health int `json:"h"`
}

// ProjectileSnap carries a heading instead of health.
//   {"k":1,"x":300,"y":220,"a":0.78}
type ProjectileSnap struct {
	Kind  int     `json:"k"`
	X     int     `json:"x"`
	Y     int     `json:"y"`
	Angle float64 `json:"a"`
}

// StateMessage is the host's authoritative snapshot, pushed at a fixed
// cadence. Array lengths never exceed the caps above.
//   {"type":"game-state","t":...,"p":[...],"e":[...],"j":[...],"w":3,"sc":1200,"el":94}
type StateMessage struct {
	Type        string           `json:"type"`
	T           int64            `json:"t"`
	Players     []PlayerSnap     `json:"p"`
	Enemies     []EnemySnap      `json:"e"`
	Projectiles []ProjectileSnap `json:"j"`
	Wave        int              `json:"w"`
	Score       int              `json:"sc"`
	Elapsed     int              `json:"el"` // seconds since game start
}
