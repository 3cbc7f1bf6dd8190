package game

import (
	"math"
	"testing"
)

func TestSpawnReusesFreedSlots(t *testing.T) {
	w := NewWorld()

	first := w.SpawnEnemy(1, 10, 10, 3)
	second := w.SpawnEnemy(2, 20, 20, 3)
	if first != 0 || second != 1 {
		t.Fatalf("got slots %d,%d, want 0,1", first, second)
	}

	w.Enemies[0].Active = false
	if got := w.SpawnEnemy(3, 30, 30, 3); got != 0 {
		t.Fatalf("got slot %d, want freed slot 0", got)
	}
}

func TestSpawnReportsExhaustion(t *testing.T) {
	w := NewWorld()
	for i := 0; i < ProjectilePool; i++ {
		if w.SpawnProjectile(1, 0, 0, 0) < 0 {
			t.Fatalf("pool exhausted after %d spawns", i)
		}
	}
	if w.SpawnProjectile(1, 0, 0, 0) != -1 {
		t.Fatal("expected -1 once the pool is full")
	}
}

func TestAdvanceClampsPlayers(t *testing.T) {
	w := NewWorld()
	w.Players[0].X = 1
	w.Players[0].IntentX = -1

	w.Advance(1)
	if w.Players[0].X != 0 {
		t.Fatalf("x=%v, want clamped 0", w.Players[0].X)
	}
}

func TestEnemiesSeekNearestPlayer(t *testing.T) {
	w := NewWorld()
	w.SpawnEnemy(1, 290, 400, 3) // just left of player 0 at (300,400)

	w.Advance(0.1)
	e := w.Enemies[0]
	if e.X <= 290 {
		t.Fatalf("x=%v, enemy should move toward player 0", e.X)
	}
	if math.Abs(e.Y-400) > 0.01 {
		t.Fatalf("y=%v, want ~400", e.Y)
	}
}

func TestProjectilesExpireOffWorld(t *testing.T) {
	w := NewWorld()
	w.SpawnProjectile(1, WorldSize-1, 400, 0) // heading right, about to leave

	w.Advance(1)
	if w.Projectiles[0].Active {
		t.Fatal("projectile past the world edge must deactivate")
	}
}
