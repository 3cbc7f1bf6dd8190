package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"coopwave/internal/protocol"
)

// State tracks where the session is in the room-membership protocol.
// Transitions happen only on explicit protocol events, never inferred.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateInRoom
	StateInGame
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateInRoom:
		return "in-room"
	case StateInGame:
		return "in-game"
	}
	return "unknown"
}

// Role is decided by which room operation succeeded: creating a room
// makes this peer the authoritative host, joining makes it the guest.
type Role int

const (
	RoleNone Role = iota
	RoleHost
	RoleGuest
)

// Handler receives the raw frame of a subscribed message type.
type Handler func(raw []byte)

const pingInterval = 2 * time.Second

type roomReply struct {
	code string
	err  error
}

type pendingRoomReq struct {
	want string
	role Role
	ch   chan roomReply
}

// Session owns one peer's connection lifecycle, room membership and
// message dispatch. Construct one per game instance and inject it where
// needed; there is no package-level singleton.
type Session struct {
	serverURL string

	mu        sync.Mutex
	state     State
	role      Role
	roomCode  string
	transport Transport
	subs      map[string]map[int]Handler
	allSubs   map[int]Handler
	nextSub   int
	pending   *pendingRoomReq
	lastHash  uint64
	hasHash   bool
	latency   time.Duration
	pingStop  chan struct{}
}

// New builds a disconnected session. An empty serverURL selects the
// in-process loopback transport on Connect.
func New(serverURL string) *Session {
	return &Session{
		serverURL: serverURL,
		subs:      make(map[string]map[int]Handler),
		allSubs:   make(map[int]Handler),
	}
}

// Connect opens the transport. With no server configured the loopback
// comes up instantly; otherwise this blocks on the websocket dial.
func (s *Session) Connect() error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("connect: session is %s", s.state)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	var tr Transport
	if s.serverURL == "" {
		tr = newLoopback(s.dispatch)
	} else {
		var err error
		tr, err = dialWS(s.serverURL, s.dispatch, s.transportClosed)
		if err != nil {
			s.mu.Lock()
			s.state = StateDisconnected
			s.mu.Unlock()
			return fmt.Errorf("connect: %w", err)
		}
	}

	s.mu.Lock()
	s.transport = tr
	s.state = StateConnected
	s.pingStop = make(chan struct{})
	s.mu.Unlock()

	go s.pingLoop()
	return nil
}

// Close tears the session down: every subscription is dropped, the ping
// timer stops, and the transport is closed. There is no reconnect.
func (s *Session) Close() {
	s.mu.Lock()
	tr := s.transport
	s.transport = nil
	if s.pingStop != nil {
		close(s.pingStop)
		s.pingStop = nil
	}
	if p := s.pending; p != nil {
		p.ch <- roomReply{err: errors.New("session closed")}
		s.pending = nil
	}
	s.subs = make(map[string]map[int]Handler)
	s.allSubs = make(map[int]Handler)
	s.state = StateDisconnected
	s.mu.Unlock()

	if tr != nil {
		tr.Close()
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *Session) RoomCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomCode
}

// Latency reports the most recent ping round trip. Advisory only; no
// logic gates on it.
func (s *Session) Latency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latency
}

// Subscribe registers a handler for one message type and returns a
// token for Unsubscribe.
func (s *Session) Subscribe(msgType string, h Handler) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	if s.subs[msgType] == nil {
		s.subs[msgType] = make(map[int]Handler)
	}
	s.subs[msgType][s.nextSub] = h
	return s.nextSub
}

func (s *Session) Unsubscribe(msgType string, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs[msgType], id)
}

// SubscribeAll registers a catch-all handler, mainly for diagnostics.
func (s *Session) SubscribeAll(h Handler) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	s.allSubs[s.nextSub] = h
	return s.nextSub
}

func (s *Session) UnsubscribeAll(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.allSubs, id)
}

// CreateRoom asks the relay for a fresh room and resolves with its
// code. On success this peer is the host.
func (s *Session) CreateRoom(ctx context.Context) (string, error) {
	return s.roomRequest(ctx, protocol.TypeRoomCreated, RoleHost,
		protocol.CreateRoomMessage{Type: protocol.TypeCreateRoom})
}

// JoinRoom attaches to an existing room as guest. The code is accepted
// in any case; the relay normalizes it.
func (s *Session) JoinRoom(ctx context.Context, code string) (string, error) {
	return s.roomRequest(ctx, protocol.TypeRoomJoined, RoleGuest,
		protocol.JoinRoomMessage{Type: protocol.TypeJoinRoom, Code: code})
}

func (s *Session) roomRequest(ctx context.Context, want string, role Role, msg interface{}) (string, error) {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return "", fmt.Errorf("room request: session is %s", s.state)
	}
	if s.pending != nil {
		s.mu.Unlock()
		return "", errors.New("room request already in flight")
	}
	p := &pendingRoomReq{want: want, role: role, ch: make(chan roomReply, 1)}
	s.pending = p
	tr := s.transport
	s.mu.Unlock()

	if err := tr.Send(protocol.Marshal(msg)); err != nil {
		s.clearPending(p)
		return "", err
	}

	select {
	case r := <-p.ch:
		return r.code, r.err
	case <-ctx.Done():
		s.clearPending(p)
		return "", ctx.Err()
	}
}

func (s *Session) clearPending(p *pendingRoomReq) {
	s.mu.Lock()
	if s.pending == p {
		s.pending = nil
	}
	s.mu.Unlock()
}

// SetReady signals readiness to the other peer.
func (s *Session) SetReady(ready bool) error {
	return s.sendInRoom(protocol.PlayerReadyMessage{Type: protocol.TypePlayerReady, Ready: ready})
}

// SelectWeapon announces this peer's weapon choice.
func (s *Session) SelectWeapon(weapon string) error {
	return s.sendInRoom(protocol.WeaponSelectedMessage{Type: protocol.TypeWeaponSelected, Weapon: weapon})
}

// StartGame moves the session in-game and tells the guest to do the
// same. Only the host may call it.
func (s *Session) StartGame() error {
	s.mu.Lock()
	if s.role != RoleHost {
		s.mu.Unlock()
		return errors.New("start-game is host-only")
	}
	if s.state != StateInRoom {
		s.mu.Unlock()
		return fmt.Errorf("start-game: session is %s", s.state)
	}
	s.state = StateInGame
	tr := s.transport
	s.mu.Unlock()

	return tr.Send(protocol.Marshal(protocol.GameStartMessage{Type: protocol.TypeGameStart}))
}

// SendInput forwards control state upstream. Identical control state is
// suppressed by hash so an idle stick costs no bandwidth; the bool
// reports whether a frame actually went out.
func (s *Session) SendInput(in protocol.InputMessage) (bool, error) {
	in.Type = protocol.TypePlayerInput
	if in.T == 0 {
		in.T = time.Now().UnixMilli()
	}
	hash := in.Hash()

	s.mu.Lock()
	if s.state != StateInRoom && s.state != StateInGame {
		s.mu.Unlock()
		return false, fmt.Errorf("send-input: session is %s", s.state)
	}
	if s.hasHash && s.lastHash == hash {
		s.mu.Unlock()
		return false, nil
	}
	s.lastHash = hash
	s.hasHash = true
	tr := s.transport
	s.mu.Unlock()

	return true, tr.Send(protocol.Marshal(in))
}

// SendGameState pushes an authoritative snapshot. Only the host may
// call it.
func (s *Session) SendGameState(st protocol.StateMessage) error {
	st.Type = protocol.TypeGameState
	s.mu.Lock()
	if s.role != RoleHost {
		s.mu.Unlock()
		return errors.New("game-state is host-only")
	}
	tr := s.transport
	state := s.state
	s.mu.Unlock()

	if state != StateInRoom && state != StateInGame {
		return fmt.Errorf("game-state: session is %s", state)
	}
	return tr.Send(protocol.Marshal(st))
}

// SendLevelUp announces a level-up and the upgrade choices on offer.
func (s *Session) SendLevelUp(level int, choices []string) error {
	return s.sendInRoom(protocol.LevelUpMessage{Type: protocol.TypeLevelUp, Level: level, Choices: choices})
}

// SendUpgradeSelected reports which upgrade this peer picked.
func (s *Session) SendUpgradeSelected(upgrade string) error {
	return s.sendInRoom(protocol.UpgradeSelectedMessage{Type: protocol.TypeUpgradeSelected, Upgrade: upgrade})
}

// SendUpgradesApplied confirms the applied upgrade set.
func (s *Session) SendUpgradesApplied(upgrades []string) error {
	return s.sendInRoom(protocol.UpgradesAppliedMessage{Type: protocol.TypeUpgradesApplied, Upgrades: upgrades})
}

// SetPaused toggles the shared pause state.
func (s *Session) SetPaused(paused bool) error {
	if paused {
		return s.sendInRoom(protocol.GamePausedMessage{Type: protocol.TypeGamePaused})
	}
	return s.sendInRoom(protocol.GameResumedMessage{Type: protocol.TypeGameResumed})
}

func (s *Session) sendInRoom(v interface{}) error {
	s.mu.Lock()
	tr := s.transport
	state := s.state
	s.mu.Unlock()

	if state != StateInRoom && state != StateInGame {
		return fmt.Errorf("send: session is %s", state)
	}
	return tr.Send(protocol.Marshal(v))
}

// dispatch runs on the transport's receive path for every inbound
// frame: resolve a pending room request if one matches, apply state
// transitions, then fan out to subscribers.
func (s *Session) dispatch(raw []byte) {
	kind, err := protocol.Kind(raw)
	if err != nil {
		return
	}

	s.mu.Lock()

	switch kind {
	case protocol.TypePong:
		var msg protocol.PongMessage
		if json.Unmarshal(raw, &msg) == nil && msg.T > 0 {
			rtt := time.Duration(time.Now().UnixMilli()-msg.T) * time.Millisecond
			if rtt < 0 {
				rtt = 0
			}
			s.latency = rtt
		}
	case protocol.TypeGameStart:
		if s.state == StateInRoom {
			s.state = StateInGame
		}
	}

	var resolve *pendingRoomReq
	var reply roomReply
	consumedError := false
	if p := s.pending; p != nil {
		switch kind {
		case p.want:
			var ack struct {
				Code string `json:"code"`
			}
			json.Unmarshal(raw, &ack)
			s.state = StateInRoom
			s.roomCode = ack.Code
			s.role = p.role
			resolve, reply = p, roomReply{code: ack.Code}
			s.pending = nil
		case protocol.TypeError:
			var msg protocol.ErrorMessage
			json.Unmarshal(raw, &msg)
			resolve, reply = p, roomReply{err: errors.New(msg.Message)}
			s.pending = nil
			consumedError = true
		}
	}

	handlers := s.handlersLocked(kind)
	s.mu.Unlock()

	if resolve != nil {
		resolve.ch <- reply
	}
	if consumedError {
		// A rejected room request is reported to its caller, not to
		// error subscribers.
		return
	}
	for _, h := range handlers {
		h(raw)
	}
}

func (s *Session) handlersLocked(kind string) []Handler {
	handlers := make([]Handler, 0, len(s.subs[kind])+len(s.allSubs))
	for _, h := range s.subs[kind] {
		handlers = append(handlers, h)
	}
	for _, h := range s.allSubs {
		handlers = append(handlers, h)
	}
	return handlers
}

// transportClosed fires when the socket dies underneath us. The session
// degrades to disconnected and error subscribers hear about it; nothing
// retries automatically.
func (s *Session) transportClosed(err error) {
	if err == nil {
		return // deliberate Close
	}

	s.mu.Lock()
	s.state = StateDisconnected
	s.transport = nil
	if s.pingStop != nil {
		close(s.pingStop)
		s.pingStop = nil
	}
	p := s.pending
	s.pending = nil
	handlers := s.handlersLocked(protocol.TypeError)
	s.mu.Unlock()

	if p != nil {
		p.ch <- roomReply{err: fmt.Errorf("connection lost: %w", err)}
	}
	raw := protocol.Marshal(protocol.ErrorMessage{Type: protocol.TypeError, Message: "connection lost"})
	for _, h := range handlers {
		h(raw)
	}
}

func (s *Session) pingLoop() {
	s.mu.Lock()
	stop := s.pingStop
	s.mu.Unlock()
	if stop == nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			tr := s.transport
			s.mu.Unlock()
			if tr == nil {
				return
			}
			tr.Send(protocol.Marshal(protocol.PingMessage{Type: protocol.TypePing, T: time.Now().UnixMilli()}))
		case <-stop:
			return
		}
	}
}

// InviteURL renders the shareable join link for a room code, e.g.
// https://game.example/?room=K7Q2N9.
func InviteURL(base, code string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("room", code)
	u.RawQuery = q.Encode()
	return u.String()
}
