package bridge

import (
	"encoding/json"
	"log/slog"
	"sync"

	"chatpad-go/types"

	"github.com/gorilla/websocket"
)

// Outbound message types.
const (
	MsgHello  = "hello"
	MsgKey    = "key"
	MsgStatus = "status"
)

// Inbound command types.
const (
	CmdText     = "text"
	CmdMacroSet = "macro_set"
	CmdNewline  = "newline"
	CmdChatpad  = "chatpad"
)

type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type KeyPayload struct {
	Kind types.KeyEventType `json:"kind"`
	Text string             `json:"text"`
}

// Command is a client request; fields are used per Type.
type Command struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Key    string `json:"key,omitempty"`
	Enable bool   `json:"enable,omitempty"`
	Verb   string `json:"verb,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Broadcaster fans messages out to websocket clients. A client whose queue
// is full is disconnected.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]bool
	status  *types.ChatpadState
	max     int
	log     *slog.Logger
}

func newBroadcaster(max int, log *slog.Logger) *Broadcaster {
	return &Broadcaster{clients: make(map[*client]bool), max: max, log: log}
}

// AddClient registers conn and greets it with the last known chatpad status.
func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	st := b.status
	b.mu.Unlock()

	hello := WSMessage{Type: MsgHello}
	if st != nil {
		hello.Payload = *st
	}
	data, _ := json.Marshal(hello)
	select {
	case c.send <- data:
	default:
	}
	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) setStatus(st types.ChatpadState) {
	b.mu.Lock()
	b.status = &st
	b.mu.Unlock()
	b.broadcast(WSMessage{Type: MsgStatus, Payload: st})
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.log.Error("broadcast marshal", "err", err)
		return
	}

	// Sends happen under the read lock so no queue is closed mid-send.
	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.log.Warn("ws client too slow, disconnecting")
		b.RemoveClient(c)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
