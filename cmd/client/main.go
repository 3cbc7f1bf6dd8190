package main

import (
	"context"
	"flag"
	"image/color"
	"log"
	"math"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"coopwave/internal/game"
	"coopwave/internal/gamesync"
	"coopwave/internal/protocol"
	"coopwave/internal/session"
)

const (
	ScreenWidth  = 800
	ScreenHeight = 800

	fireCooldown  = 250 * time.Millisecond
	spawnInterval = 2 * time.Second
	demoEnemyCap  = 12
)

type Game struct {
	sess    *session.Session
	world   *game.World
	bcast   *gamesync.Broadcaster
	applier *gamesync.Applier
	isHost  bool

	last      time.Time
	lastFire  time.Time
	lastSpawn time.Time
}

func (g *Game) Update() error {
	now := time.Now()
	dt := now.Sub(g.last).Seconds()
	if dt > 0.1 {
		dt = 0.1
	}
	g.last = now

	if ebiten.IsKeyPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}

	if g.isHost {
		c := g.readControls(&g.world.Players[0])
		p := &g.world.Players[0]
		p.IntentX = float64(c.MoveX)
		p.IntentY = float64(c.MoveY)
		p.Aim = c.Aim
		p.Fire = c.Fire
		p.Special = c.Special

		g.bcast.ApplyRemoteInput(g.world)
		g.fireProjectiles(now)
		g.spawnEnemies(now)
		g.world.Advance(dt)
		g.bcast.Tick(now, g.world)
	} else {
		c := g.readControls(&g.world.Players[1])
		if _, err := gamesync.ForwardInput(g.sess, now, c); err != nil {
			log.Printf("input send failed: %v", err)
		}
		g.applier.ApplyPending(g.world)
	}

	return nil
}

func (g *Game) readControls(self *game.Player) gamesync.Controls {
	var c gamesync.Controls
	if ebiten.IsKeyPressed(ebiten.KeyA) {
		c.MoveX--
	}
	if ebiten.IsKeyPressed(ebiten.KeyD) {
		c.MoveX++
	}
	if ebiten.IsKeyPressed(ebiten.KeyW) {
		c.MoveY--
	}
	if ebiten.IsKeyPressed(ebiten.KeyS) {
		c.MoveY++
	}
	mx, my := ebiten.CursorPosition()
	c.Aim = math.Atan2(float64(my)-self.Y, float64(mx)-self.X)
	c.Fire = ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft)
	c.Special = ebiten.IsKeyPressed(ebiten.KeySpace)
	return c
}

// fireProjectiles turns held triggers into projectile spawns on a fixed
// cooldown, for both players.
func (g *Game) fireProjectiles(now time.Time) {
	if now.Sub(g.lastFire) < fireCooldown {
		return
	}
	fired := false
	for i := range g.world.Players {
		p := g.world.Players[i]
		if p.Active && p.Fire {
			g.world.SpawnProjectile(0, p.X, p.Y, p.Aim)
			fired = true
		}
	}
	if fired {
		g.lastFire = now
	}
}

// spawnEnemies keeps a small demo wave alive so there is something on
// screen to synchronize.
func (g *Game) spawnEnemies(now time.Time) {
	if now.Sub(g.lastSpawn) < spawnInterval {
		return
	}
	g.lastSpawn = now

	active := 0
	for i := range g.world.Enemies {
		if g.world.Enemies[i].Active {
			active++
		}
	}
	if active >= demoEnemyCap {
		return
	}
	// Spawn on a random-ish edge point derived from elapsed time.
	angle := g.world.Elapsed * 2.39996
	x := game.WorldSize/2 + math.Cos(angle)*game.WorldSize/2
	y := game.WorldSize/2 + math.Sin(angle)*game.WorldSize/2
	g.world.SpawnEnemy(0, x, y, 40)
}

func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{24, 24, 32, 255})

	for i := range g.world.Enemies {
		e := g.world.Enemies[i]
		if !e.Active {
			continue
		}
		vector.DrawFilledCircle(screen, float32(e.X), float32(e.Y), 10, color.RGBA{200, 60, 60, 255}, false)
	}

	for i := range g.world.Projectiles {
		pr := g.world.Projectiles[i]
		if !pr.Active {
			continue
		}
		vector.DrawFilledCircle(screen, float32(pr.X), float32(pr.Y), 3, color.RGBA{240, 220, 120, 255}, false)
	}

	for i := range g.world.Players {
		p := g.world.Players[i]
		if !p.Active {
			continue
		}
		col := color.RGBA{80, 140, 240, 255}
		if (i == 0) != g.isHost {
			col = color.RGBA{80, 220, 120, 255}
		}
		vector.DrawFilledCircle(screen, float32(p.X), float32(p.Y), 12, col, false)
		// Aim line
		ax := p.X + math.Cos(p.Aim)*18
		ay := p.Y + math.Sin(p.Aim)*18
		vector.StrokeLine(screen, float32(p.X), float32(p.Y), float32(ax), float32(ay), 2, col, false)
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return ScreenWidth, ScreenHeight
}

func main() {
	serverURL := flag.String("server", "", "relay websocket URL, e.g. ws://localhost:8080/ws (empty = offline loopback)")
	joinCode := flag.String("join", "", "room code to join as guest; without it this client hosts")
	flag.Parse()

	sess := session.New(*serverURL)
	if err := sess.Connect(); err != nil {
		log.Fatal(err)
	}
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g := &Game{
		sess:  sess,
		world: game.NewWorld(),
		last:  time.Now(),
	}

	sess.Subscribe(protocol.TypeError, func(raw []byte) {
		log.Printf("session error: %s (return to room setup to retry)", raw)
	})
	sess.Subscribe(protocol.TypePlayerLeft, func([]byte) {
		log.Printf("the other player left")
	})

	if *joinCode != "" {
		code, err := sess.JoinRoom(ctx, *joinCode)
		if err != nil {
			log.Fatalf("join failed: %v", err)
		}
		log.Printf("Joined room %s", code)
		g.applier = gamesync.NewApplier()
		sess.Subscribe(protocol.TypeGameState, g.applier.OnSnapshot)
	} else {
		code, err := sess.CreateRoom(ctx)
		if err != nil {
			log.Fatalf("create failed: %v", err)
		}
		g.isHost = true
		g.bcast = gamesync.NewBroadcaster(sess)
		sess.Subscribe(protocol.TypePlayerInput, g.bcast.OnInput)
		sess.Subscribe(protocol.TypePlayerJoined, func([]byte) {
			log.Printf("guest joined room %s", code)
		})

		log.Printf("Hosting room %s", code)
		log.Printf("Invite link: %s", session.InviteURL("http://localhost:8080/", code))

		if err := sess.StartGame(); err != nil {
			log.Fatalf("start failed: %v", err)
		}
	}

	ebiten.SetWindowSize(ScreenWidth, ScreenHeight)
	ebiten.SetWindowTitle("coopwave")
	if err := ebiten.RunGame(g); err != nil {
		log.Fatal(err)
	}
}
