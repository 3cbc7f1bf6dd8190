package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"coopwave/internal/protocol"
)

const writeWait = 10 * time.Second

// peer wraps one websocket occupant. Writes are serialized by the
// per-peer mutex since forwards, notifications and the sweep can race.
type peer struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex

	// Guarded by the server mutex, not the peer mutex.
	room   *room
	isHost bool
}

func (p *peer) send(v interface{}) error {
	return p.sendRaw(protocol.Marshal(v))
}

func (p *peer) sendRaw(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *peer) close() {
	p.conn.Close()
}

// room holds at most one host and one guest. The host owns the room:
// the room dies with it. A guest slot can empty and refill any number
// of times under the same code.
type room struct {
	code            string
	host            *peer
	guest           *peer
	createdAt       time.Time
	guestEmptySince time.Time
}
