package session

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"coopwave/internal/protocol"
	"coopwave/internal/relay"
)

// loopbackDelay is the synthetic acknowledgement latency for room
// requests, so callers exercise the same asynchronous resolve path they
// would against a real relay.
const loopbackDelay = 10 * time.Millisecond

// loopbackTransport simulates the relay in-process. Room requests are
// acknowledged after a short delay; every other frame is echoed back
// into the same dispatch path as if it had arrived from the network.
type loopbackTransport struct {
	mu        sync.Mutex
	closed    bool
	onMessage func([]byte)
}

func newLoopback(onMessage func([]byte)) *loopbackTransport {
	return &loopbackTransport{onMessage: onMessage}
}

func (t *loopbackTransport) Send(data []byte) error {
	kind, err := protocol.Kind(data)
	if err != nil {
		return err
	}

	switch kind {
	case protocol.TypeCreateRoom:
		reply := protocol.RoomCreatedMessage{Type: protocol.TypeRoomCreated, Code: relay.NewCode()}
		t.deliverLater(protocol.Marshal(reply))

	case protocol.TypeJoinRoom:
		var msg protocol.JoinRoomMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		code := strings.ToUpper(strings.TrimSpace(msg.Code))
		reply := protocol.RoomJoinedMessage{Type: protocol.TypeRoomJoined, Code: code}
		t.deliverLater(protocol.Marshal(reply))

	case protocol.TypePing:
		var msg protocol.PingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		t.deliver(protocol.Marshal(protocol.PongMessage{Type: protocol.TypePong, T: msg.T}))

	default:
		t.deliver(data)
	}
	return nil
}

func (t *loopbackTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *loopbackTransport) deliver(data []byte) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if !closed {
		t.onMessage(data)
	}
}

func (t *loopbackTransport) deliverLater(data []byte) {
	time.AfterFunc(loopbackDelay, func() { t.deliver(data) })
}
