package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"coopwave/internal/protocol"
	"coopwave/internal/relay"
)

func startRelay(t *testing.T) string {
	t.Helper()
	srv := relay.NewServer()
	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.HandleHealth)
	mux.HandleFunc("/ws", srv.HandleWS)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func connectSession(t *testing.T, url string) *Session {
	t.Helper()
	s := New(url)
	if err := s.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func awaitRaw(t *testing.T, ch <-chan []byte, what string) []byte {
	t.Helper()
	select {
	case raw := <-ch:
		return raw
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return nil
	}
}

// The full two-peer handshake over a real relay: create, lowercase
// join, start, then live traffic both ways.
func TestTwoPeerSession(t *testing.T) {
	url := startRelay(t)

	host := connectSession(t, url)
	guest := connectSession(t, url)

	hostJoined := make(chan []byte, 1)
	host.Subscribe(protocol.TypePlayerJoined, func(raw []byte) { hostJoined <- raw })

	code, err := host.CreateRoom(testCtx(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	joinedCode, err := guest.JoinRoom(testCtx(t), strings.ToLower(code))
	if err != nil {
		t.Fatalf("join with lowercase code: %v", err)
	}
	if joinedCode != code {
		t.Fatalf("join resolved %q, want %q", joinedCode, code)
	}
	awaitRaw(t, hostJoined, "player-joined at host")

	guestStart := make(chan []byte, 1)
	guest.Subscribe(protocol.TypeGameStart, func(raw []byte) { guestStart <- raw })

	if err := host.StartGame(); err != nil {
		t.Fatalf("start: %v", err)
	}
	awaitRaw(t, guestStart, "game-start at guest")
	waitForState(t, guest, StateInGame)

	// Guest input reaches the host.
	hostInput := make(chan []byte, 1)
	host.Subscribe(protocol.TypePlayerInput, func(raw []byte) { hostInput <- raw })
	if _, err := guest.SendInput(protocol.InputMessage{MoveX: 1, Aim: 0.75}); err != nil {
		t.Fatalf("send input: %v", err)
	}
	awaitRaw(t, hostInput, "player-input at host")

	// Host snapshots reach the guest.
	guestState := make(chan []byte, 1)
	guest.Subscribe(protocol.TypeGameState, func(raw []byte) { guestState <- raw })
	if err := host.SendGameState(protocol.StateMessage{T: 1, Wave: 1}); err != nil {
		t.Fatalf("send state: %v", err)
	}
	awaitRaw(t, guestState, "game-state at guest")
}

func TestJoinRejectedByRelay(t *testing.T) {
	url := startRelay(t)

	guest := connectSession(t, url)
	if _, err := guest.JoinRoom(testCtx(t), "ZZZZZZ"); err == nil {
		t.Fatal("joining a nonexistent room must fail")
	}
	// The rejection leaves the session usable.
	if guest.State() != StateConnected {
		t.Fatalf("expected connected after rejected join, got %s", guest.State())
	}
}

func TestHostDisconnectReachesGuest(t *testing.T) {
	url := startRelay(t)

	host := connectSession(t, url)
	guest := connectSession(t, url)

	code, err := host.CreateRoom(testCtx(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := guest.JoinRoom(testCtx(t), code); err != nil {
		t.Fatalf("join: %v", err)
	}

	left := make(chan []byte, 1)
	guest.Subscribe(protocol.TypePlayerLeft, func(raw []byte) { left <- raw })

	host.Close()
	awaitRaw(t, left, "player-left at guest")

	// The relay closes the guest socket; the session degrades to
	// disconnected without retrying.
	waitForState(t, guest, StateDisconnected)
}

func waitForState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session state %s, want %s", s.State(), want)
}
