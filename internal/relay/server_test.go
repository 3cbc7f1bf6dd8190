package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer()
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HandleHealth)
	mux.HandleFunc("/ws", s.HandleWS)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return s, ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]interface{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func createRoom(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	sendJSON(t, conn, map[string]interface{}{"type": "create-room"})
	msg := readJSON(t, conn)
	if msg["type"] != "room-created" {
		t.Fatalf("expected room-created, got %v", msg)
	}
	code, _ := msg["code"].(string)
	if len(code) != CodeLength {
		t.Fatalf("expected %d-char code, got %q", CodeLength, code)
	}
	return code
}

func TestNewCodeAlphabet(t *testing.T) {
	for i := 0; i < 200; i++ {
		code := NewCode()
		if len(code) != CodeLength {
			t.Fatalf("code %q has length %d", code, len(code))
		}
		for _, c := range code {
			if !strings.ContainsRune(codeAlphabet, c) {
				t.Fatalf("code %q contains %q outside the alphabet", code, c)
			}
		}
	}
}

func TestCreateRoomsDistinctCodes(t *testing.T) {
	s, ts := newTestServer(t)

	codes := make(map[string]bool)
	for i := 0; i < 10; i++ {
		conn := dialWS(t, ts)
		code := createRoom(t, conn)
		if codes[code] {
			t.Fatalf("duplicate room code %q", code)
		}
		codes[code] = true
	}

	if got := s.RoomCount(); got != 10 {
		t.Fatalf("expected 10 rooms, got %d", got)
	}
}

func TestJoinRoomCaseInsensitive(t *testing.T) {
	_, ts := newTestServer(t)

	host := dialWS(t, ts)
	code := createRoom(t, host)

	guest := dialWS(t, ts)
	sendJSON(t, guest, map[string]interface{}{"type": "join-room", "code": strings.ToLower(code)})

	joined := readJSON(t, guest)
	if joined["type"] != "room-joined" || joined["code"] != code {
		t.Fatalf("expected room-joined %s, got %v", code, joined)
	}

	notified := readJSON(t, host)
	if notified["type"] != "player-joined" {
		t.Fatalf("expected player-joined at host, got %v", notified)
	}
	if id, _ := notified["peerId"].(string); id == "" {
		t.Fatalf("player-joined missing peerId: %v", notified)
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	_, ts := newTestServer(t)

	conn := dialWS(t, ts)
	sendJSON(t, conn, map[string]interface{}{"type": "join-room", "code": "ZZZZZZ"})

	msg := readJSON(t, conn)
	if msg["type"] != "error" || msg["message"] != "room not found" {
		t.Fatalf("expected room-not-found error, got %v", msg)
	}
}

func TestThirdJoinRejected(t *testing.T) {
	s, ts := newTestServer(t)

	host := dialWS(t, ts)
	code := createRoom(t, host)

	guest := dialWS(t, ts)
	sendJSON(t, guest, map[string]interface{}{"type": "join-room", "code": code})
	readJSON(t, guest) // room-joined
	readJSON(t, host)  // player-joined

	third := dialWS(t, ts)
	sendJSON(t, third, map[string]interface{}{"type": "join-room", "code": code})
	msg := readJSON(t, third)
	if msg["type"] != "error" || msg["message"] != "room is full" {
		t.Fatalf("expected room-is-full error, got %v", msg)
	}

	// Membership is untouched: host and guest still forward.
	sendJSON(t, host, map[string]interface{}{"type": "game-start"})
	fwd := readJSON(t, guest)
	if fwd["type"] != "game-start" {
		t.Fatalf("expected game-start forwarded to guest, got %v", fwd)
	}
	if got := s.RoomCount(); got != 1 {
		t.Fatalf("expected 1 room, got %d", got)
	}
}

func TestForwardIsOpaque(t *testing.T) {
	_, ts := newTestServer(t)

	host := dialWS(t, ts)
	code := createRoom(t, host)
	guest := dialWS(t, ts)
	sendJSON(t, guest, map[string]interface{}{"type": "join-room", "code": code})
	readJSON(t, guest)
	readJSON(t, host)

	// A message type the relay has never heard of passes through
	// verbatim, fields included.
	sendJSON(t, guest, map[string]interface{}{"type": "player-input", "x": float64(1), "a": 1.57})
	msg := readJSON(t, host)
	if msg["type"] != "player-input" || msg["x"] != float64(1) || msg["a"] != 1.57 {
		t.Fatalf("forwarded message mangled: %v", msg)
	}

	sendJSON(t, host, map[string]interface{}{"type": "weapon-selected", "weapon": "laser"})
	msg = readJSON(t, guest)
	if msg["type"] != "weapon-selected" || msg["weapon"] != "laser" {
		t.Fatalf("forwarded message mangled: %v", msg)
	}
}

func TestForwardWithoutRoom(t *testing.T) {
	_, ts := newTestServer(t)

	conn := dialWS(t, ts)
	sendJSON(t, conn, map[string]interface{}{"type": "player-input", "x": float64(1)})
	msg := readJSON(t, conn)
	if msg["type"] != "error" || msg["message"] != "not in a room" {
		t.Fatalf("expected not-in-a-room error, got %v", msg)
	}
}

func TestPingPongEchoesTimestamp(t *testing.T) {
	_, ts := newTestServer(t)

	conn := dialWS(t, ts)
	sendJSON(t, conn, map[string]interface{}{"type": "ping", "t": float64(123456789)})
	msg := readJSON(t, conn)
	if msg["type"] != "pong" || msg["t"] != float64(123456789) {
		t.Fatalf("expected pong echoing t, got %v", msg)
	}
}

func TestHostLeaveDeletesRoom(t *testing.T) {
	s, ts := newTestServer(t)

	host := dialWS(t, ts)
	code := createRoom(t, host)
	guest := dialWS(t, ts)
	sendJSON(t, guest, map[string]interface{}{"type": "join-room", "code": code})
	readJSON(t, guest)
	readJSON(t, host)

	host.Close()

	msg := readJSON(t, guest)
	if msg["type"] != "player-left" {
		t.Fatalf("expected player-left at guest, got %v", msg)
	}

	// The relay closes the guest socket after notifying it.
	guest.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := guest.ReadMessage(); err == nil {
		t.Fatalf("expected guest socket to be closed")
	}

	waitFor(t, func() bool { return s.RoomCount() == 0 })
}

func TestGuestLeaveKeepsRoomJoinable(t *testing.T) {
	s, ts := newTestServer(t)

	host := dialWS(t, ts)
	code := createRoom(t, host)
	guest := dialWS(t, ts)
	sendJSON(t, guest, map[string]interface{}{"type": "join-room", "code": code})
	readJSON(t, guest)
	readJSON(t, host)

	guest.Close()

	msg := readJSON(t, host)
	if msg["type"] != "player-left" {
		t.Fatalf("expected player-left at host, got %v", msg)
	}
	if got := s.RoomCount(); got != 1 {
		t.Fatalf("expected room to survive guest leave, got %d rooms", got)
	}

	rejoin := dialWS(t, ts)
	sendJSON(t, rejoin, map[string]interface{}{"type": "join-room", "code": code})
	joined := readJSON(t, rejoin)
	if joined["type"] != "room-joined" {
		t.Fatalf("expected rejoin to succeed, got %v", joined)
	}
}

func TestIdleRoomExpires(t *testing.T) {
	s, ts := newTestServer(t)

	host := dialWS(t, ts)
	createRoom(t, host)

	// A freshly swept registry keeps rooms under the threshold.
	s.sweepExpired(time.Now().Add(ExpireAfter - time.Second))
	if got := s.RoomCount(); got != 1 {
		t.Fatalf("room expired too early, got %d rooms", got)
	}

	s.sweepExpired(time.Now().Add(ExpireAfter + time.Second))
	if got := s.RoomCount(); got != 0 {
		t.Fatalf("expected expired room to be removed, got %d rooms", got)
	}

	msg := readJSON(t, host)
	if msg["type"] != "error" || msg["message"] != "room expired" {
		t.Fatalf("expected room-expired error at host, got %v", msg)
	}
}

func TestOccupiedRoomNeverExpires(t *testing.T) {
	s, ts := newTestServer(t)

	host := dialWS(t, ts)
	code := createRoom(t, host)
	guest := dialWS(t, ts)
	sendJSON(t, guest, map[string]interface{}{"type": "join-room", "code": code})
	readJSON(t, guest)
	readJSON(t, host)

	s.sweepExpired(time.Now().Add(24 * time.Hour))
	if got := s.RoomCount(); got != 1 {
		t.Fatalf("occupied room was swept, got %d rooms", got)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	for _, path := range []string{"/", "/health"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: status %d", path, resp.StatusCode)
		}
		var body struct {
			Status string `json:"status"`
			Rooms  int    `json:"rooms"`
			Uptime int    `json:"uptime"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("GET %s: decode: %v", path, err)
		}
		resp.Body.Close()
		if body.Status != "ok" {
			t.Fatalf("GET %s: status field %q", path, body.Status)
		}
	}

	resp, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown path, got %d", resp.StatusCode)
	}
}

func TestMalformedMessage(t *testing.T) {
	_, ts := newTestServer(t)

	conn := dialWS(t, ts)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readJSON(t, conn)
	if msg["type"] != "error" {
		t.Fatalf("expected error for malformed payload, got %v", msg)
	}

	// The connection survives a bad frame.
	createRoom(t, conn)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}
