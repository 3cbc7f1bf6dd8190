package relay

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"coopwave/internal/protocol"
)

const (
	// SweepInterval is how often abandoned rooms are checked for;
	// ExpireAfter is how long a guest slot may sit empty before the
	// room is reclaimed. Both are room-lifetime scale, not frame scale.
	SweepInterval = 1 * time.Minute
	ExpireAfter   = 10 * time.Minute
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
}

// Server is the rendezvous relay. It pairs exactly two peers per room
// and forwards their messages without understanding them.
type Server struct {
	mu        sync.Mutex
	rooms     map[string]*room
	startedAt time.Time
}

func NewServer() *Server {
	return &Server{
		rooms:     make(map[string]*room),
		startedAt: time.Now(),
	}
}

// RoomCount reports the number of currently active rooms.
func (s *Server) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// Run starts the periodic expiry sweep and blocks until stop is closed.
func (s *Server) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepExpired(time.Now())
		case <-stop:
			return
		}
	}
}

// sweepExpired reclaims rooms whose guest slot has been empty past the
// threshold, notifying the waiting host before cutting it off.
func (s *Server) sweepExpired(now time.Time) {
	s.mu.Lock()
	var expired []*room
	for code, r := range s.rooms {
		if r.guest == nil && now.Sub(r.guestEmptySince) >= ExpireAfter {
			delete(s.rooms, code)
			r.host.room = nil
			expired = append(expired, r)
		}
	}
	s.mu.Unlock()

	for _, r := range expired {
		log.Printf("room %s expired (empty for %v)", r.code, ExpireAfter)
		if err := r.host.send(protocol.ErrorMessage{Type: protocol.TypeError, Message: "room expired"}); err != nil {
			log.Printf("failed to notify host of expiry: %v", err)
		}
		r.host.close()
	}
}

// HandleHealth answers the liveness query. Never requires auth.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/health" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"rooms":  s.RoomCount(),
		"uptime": int(time.Since(s.startedAt).Seconds()),
	})
}

// HandleWS upgrades the connection and runs its read loop until the
// peer disconnects.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	p := &peer{id: uuid.New().String(), conn: conn}
	log.Printf("peer %s connected from %s", p.id, conn.RemoteAddr())

	defer func() {
		s.handleLeave(p)
		conn.Close()
		log.Printf("peer %s disconnected", p.id)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("ws read error for %s: %v", p.id, err)
			}
			return
		}

		kind, err := protocol.Kind(raw)
		if err != nil {
			p.send(protocol.ErrorMessage{Type: protocol.TypeError, Message: "malformed message"})
			continue
		}

		switch kind {
		case protocol.TypeCreateRoom:
			s.createRoom(p)

		case protocol.TypeJoinRoom:
			var msg protocol.JoinRoomMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				p.send(protocol.ErrorMessage{Type: protocol.TypeError, Message: "malformed message"})
				continue
			}
			s.joinRoom(p, msg.Code)

		case protocol.TypePing:
			var msg protocol.PingMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			p.send(protocol.PongMessage{Type: protocol.TypePong, T: msg.T})

		default:
			// Everything else is opaque game traffic for the other
			// occupant.
			s.forward(p, raw)
		}
	}
}

func (s *Server) createRoom(p *peer) {
	s.mu.Lock()
	if p.room != nil {
		s.mu.Unlock()
		p.send(protocol.ErrorMessage{Type: protocol.TypeError, Message: "already in a room"})
		return
	}

	code := NewCode()
	for _, taken := s.rooms[code]; taken; _, taken = s.rooms[code] {
		code = NewCode()
	}

	now := time.Now()
	r := &room{code: code, host: p, createdAt: now, guestEmptySince: now}
	s.rooms[code] = r
	p.room = r
	p.isHost = true
	s.mu.Unlock()

	log.Printf("peer %s created room %s", p.id, code)
	p.send(protocol.RoomCreatedMessage{Type: protocol.TypeRoomCreated, Code: code})
}

func (s *Server) joinRoom(p *peer, code string) {
	code = strings.ToUpper(strings.TrimSpace(code))

	s.mu.Lock()
	if p.room != nil {
		s.mu.Unlock()
		p.send(protocol.ErrorMessage{Type: protocol.TypeError, Message: "already in a room"})
		return
	}

	r, ok := s.rooms[code]
	if !ok {
		s.mu.Unlock()
		p.send(protocol.ErrorMessage{Type: protocol.TypeError, Message: "room not found"})
		return
	}
	if r.guest != nil {
		s.mu.Unlock()
		p.send(protocol.ErrorMessage{Type: protocol.TypeError, Message: "room is full"})
		return
	}

	r.guest = p
	r.guestEmptySince = time.Time{}
	p.room = r
	host := r.host
	s.mu.Unlock()

	log.Printf("peer %s joined room %s", p.id, code)
	p.send(protocol.RoomJoinedMessage{Type: protocol.TypeRoomJoined, Code: code})
	host.send(protocol.PlayerJoinedMessage{Type: protocol.TypePlayerJoined, PeerID: p.id})
}

// forward relays raw bytes to the other occupant of the sender's room.
// A missing counterpart is not an error: the transport is
// fire-and-forget and the message is simply dropped.
func (s *Server) forward(p *peer, raw []byte) {
	s.mu.Lock()
	r := p.room
	var other *peer
	if r != nil {
		if p.isHost {
			other = r.guest
		} else {
			other = r.host
		}
	}
	s.mu.Unlock()

	if r == nil {
		p.send(protocol.ErrorMessage{Type: protocol.TypeError, Message: "not in a room"})
		return
	}
	if other == nil {
		return
	}
	if err := other.sendRaw(raw); err != nil {
		log.Printf("forward to %s failed: %v", other.id, err)
	}
}

// handleLeave runs the departure procedure for a closed socket. Host
// departure destroys the room; guest departure only empties the slot.
func (s *Server) handleLeave(p *peer) {
	s.mu.Lock()
	r := p.room
	if r == nil {
		s.mu.Unlock()
		return
	}
	p.room = nil

	if p.isHost {
		delete(s.rooms, r.code)
		guest := r.guest
		if guest != nil {
			guest.room = nil
		}
		s.mu.Unlock()

		log.Printf("host left, room %s closed", r.code)
		if guest != nil {
			guest.send(protocol.PlayerLeftMessage{Type: protocol.TypePlayerLeft, PeerID: p.id})
			guest.close()
		}
		return
	}

	r.guest = nil
	r.guestEmptySince = time.Now()
	host := r.host
	s.mu.Unlock()

	log.Printf("guest left room %s, slot reopened", r.code)
	host.send(protocol.PlayerLeftMessage{Type: protocol.TypePlayerLeft, PeerID: p.id})
}
