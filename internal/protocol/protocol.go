package protocol

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
)

// Every wire message is a single JSON object with a "type" discriminant.
// The relay only ever looks at the discriminant; clients dispatch on it.
//
//   Room lifecycle:  create-room, join-room, room-created, room-joined,
//                    player-joined, player-left
//   Session flow:    weapon-selected, player-ready, game-start, level-up,
//                    upgrade-selected, upgrades-applied, game-paused,
//                    game-resumed
//   Live sync:       player-input, game-state
//   Liveness:        ping, pong
//   Failure:         error
const (
	TypeCreateRoom      = "create-room"
	TypeJoinRoom        = "join-room"
	TypeRoomCreated     = "room-created"
	TypeRoomJoined      = "room-joined"
	TypePlayerJoined    = "player-joined"
	TypePlayerLeft      = "player-left"
	TypeWeaponSelected  = "weapon-selected"
	TypePlayerReady     = "player-ready"
	TypeGameStart       = "game-start"
	TypeLevelUp         = "level-up"
	TypeUpgradeSelected = "upgrade-selected"
	TypeUpgradesApplied = "upgrades-applied"
	TypeGamePaused      = "game-paused"
	TypeGameResumed     = "game-resumed"
	TypePlayerInput     = "player-input"
	TypeGameState       = "game-state"
	TypePing            = "ping"
	TypePong            = "pong"
	TypeError           = "error"
)

// Envelope is the minimal probe decoded before dispatch.
type Envelope struct {
	Type string `json:"type"`
}

// Kind extracts the discriminant from a raw message.
func Kind(raw []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("malformed message: %w", err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("message missing type field")
	}
	return env.Type, nil
}

// Client → relay room requests

type CreateRoomMessage struct {
	Type string `json:"type"`
}

type JoinRoomMessage struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

// Relay → client room replies and notifications

type RoomCreatedMessage struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

type RoomJoinedMessage struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

// PeerID is the relay-assigned handle of the peer that joined or left,
// advisory only (rooms never hold more than one remote peer).
type PlayerJoinedMessage struct {
	Type   string `json:"type"`
	PeerID string `json:"peerId"`
}

type PlayerLeftMessage struct {
	Type   string `json:"type"`
	PeerID string `json:"peerId"`
}

// Session flow — forwarded opaquely by the relay.

type WeaponSelectedMessage struct {
	Type   string `json:"type"`
	Weapon string `json:"weapon"`
}

type PlayerReadyMessage struct {
	Type  string `json:"type"`
	Ready bool   `json:"ready"`
}

type GameStartMessage struct {
	Type string `json:"type"`
}

type LevelUpMessage struct {
	Type    string   `json:"type"`
	Level   int      `json:"level"`
	Choices []string `json:"choices,omitempty"`
}

type UpgradeSelectedMessage struct {
	Type    string `json:"type"`
	Upgrade string `json:"upgrade"`
}

type UpgradesAppliedMessage struct {
	Type     string   `json:"type"`
	Upgrades []string `json:"upgrades"`
}

type GamePausedMessage struct {
	Type string `json:"type"`
}

type GameResumedMessage struct {
	Type string `json:"type"`
}

// InputMessage carries one frame of control state. Single-char keys and
// 0/1 flags keep the payload small; it is sent up to once per frame.
//   {"type":"player-input","t":1712345,"x":1,"y":0,"a":1.57,"f":1,"s":0}
type InputMessage struct {
	Type    string  `json:"type"`
	T       int64   `json:"t"`           // client send time, unix ms
	MoveX   int     `json:"x"`           // -1, 0, 1
	MoveY   int     `json:"y"`           // -1, 0, 1
	Aim     float64 `json:"a"`           // radians, quantized to 2 decimals
	Fire    int     `json:"f,omitempty"` // 0 or 1
	Special int     `json:"s,omitempty"` // 0 or 1
}

// Hash folds the control state into a comparison key. The timestamp is
// excluded on purpose: two frames with identical controls must hash
// equal so the sender can skip the second transmission.
func (m InputMessage) Hash() uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%.2f|%d|%d", m.MoveX, m.MoveY, m.Aim, m.Fire, m.Special)
	return h.Sum64()
}

// Liveness probe. The reply carries the original send timestamp back so
// the sender can compute round-trip time.

type PingMessage struct {
	Type string `json:"type"`
	T    int64  `json:"t"`
}

type PongMessage struct {
	Type string `json:"type"`
	T    int64  `json:"t"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Marshal encodes any message struct, panicking on the impossible case
// of a non-serializable static type.
func Marshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("protocol: marshal %T: %v", v, err))
	}
	return data
}
