package session

import (
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the one-frame-at-a-time pipe under a Session. The ws
// implementation talks to a real relay; the loopback one echoes frames
// back in-process so the identical protocol surface runs without a
// server (solo play and tests).
type Transport interface {
	Send(data []byte) error
	Close() error
}

type wsTransport struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// dialWS connects to the relay and starts the pumps. onMessage runs on
// the read goroutine for every inbound frame; onClose fires once when
// the socket dies for any reason.
func dialWS(url string, onMessage func([]byte), onClose func(error)) (*wsTransport, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}

	t := &wsTransport{
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
	go t.readPump(onMessage, onClose)
	go t.writePump()
	return t, nil
}

func (t *wsTransport) Send(data []byte) error {
	select {
	case t.send <- data:
		return nil
	default:
		// Fire-and-forget transport: a full buffer drops the frame
		// rather than blocking the game loop.
		return nil
	}
}

func (t *wsTransport) Close() error {
	close(t.done)
	return t.conn.Close()
}

func (t *wsTransport) readPump(onMessage func([]byte), onClose func(error)) {
	defer t.conn.Close()
	for {
		_, raw, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
				onClose(nil)
			default:
				onClose(err)
			}
			return
		}
		onMessage(raw)
	}
}

func (t *wsTransport) writePump() {
	for {
		select {
		case data := <-t.send:
			t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-t.done:
			return
		}
	}
}
