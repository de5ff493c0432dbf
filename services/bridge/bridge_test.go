// bridge/bridge_test.go
package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"chatpad-go/bus"
	"chatpad-go/services/keyboard"
	"chatpad-go/types"

	"github.com/gorilla/websocket"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestBridge_StreamsKeyEventsAndAcceptsCommands(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("bridge_test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn, quiet())

	stateSub := conn.Subscribe(bus.T("bridge", "state"))
	defer conn.Unsubscribe(stateSub)

	first := nextStatePayload(t, stateSub, 500*time.Millisecond)
	assertLevelStatus(t, first, "idle", "awaiting_config")

	// Retained status seen by the bridge before any client connects.
	conn.Publish(conn.NewMessage(keyboard.TopicChatpadState(), types.ChatpadState{Status: types.ChatpadReady}, true))

	conn.Publish(conn.NewMessage(bus.T("config", "bridge"), map[string]any{"addr": "127.0.0.1:0"}, false))
	up := nextStatePayload(t, stateSub, time.Second)
	assertLevelStatus(t, up, "up", "listening")
	addr, _ := up["addr"].(string)

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+defaultPath, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	hello := readWS(t, ws)
	if hello.Type != MsgHello {
		t.Fatalf("first message %q, want hello", hello.Type)
	}
	var st struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(hello.Payload, &st); err != nil || st.Status != "ready" {
		t.Fatalf("hello payload %s (%v)", hello.Payload, err)
	}

	var ev types.KeyEvent
	ev.Type = types.KeyEventMacro
	ev.Length = copy(ev.Data[:], "gg")
	conn.Publish(conn.NewMessage(keyboard.TopicEvent(), ev, false))

	key := readWS(t, ws)
	var kp struct {
		Kind string `json:"kind"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(key.Payload, &kp); err != nil || key.Type != MsgKey || kp.Kind != "macro" || kp.Text != "gg" {
		t.Fatalf("key message %s %s (%v)", key.Type, key.Payload, err)
	}

	textSub := conn.Subscribe(keyboard.TopicText())
	if err := ws.WriteJSON(Command{Type: CmdText, Text: "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case m := <-textSub.Channel():
		if p, ok := m.Payload.(types.TextEntry); !ok || p.Text != "hi" {
			t.Fatalf("text request payload %#v", m.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("client command not forwarded")
	}
}

func TestBridge_BadConfigYieldsErrorState(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("bridge_test_bad")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn, quiet())

	stateSub := conn.Subscribe(bus.T("bridge", "state"))
	defer conn.Unsubscribe(stateSub)
	_ = nextStatePayload(t, stateSub, 500*time.Millisecond) // idle

	conn.Publish(conn.NewMessage(bus.T("config", "bridge"), map[string]any{"path": "/x"}, false))
	p := nextStatePayload(t, stateSub, time.Second)
	assertLevelStatus(t, p, "error", "config_decode_failed")

	conn.Publish(conn.NewMessage(bus.T("config", "bridge"), 42, false))
	p = nextStatePayload(t, stateSub, time.Second)
	assertLevelStatus(t, p, "error", "config_decode_failed")
}

func TestDecodeConfig_Defaults(t *testing.T) {
	cfg, err := decodeConfig(`{"addr":":8765"}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Path != defaultPath || cfg.MaxClients != defaultMaxClients {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

type rawWS struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readWS(t *testing.T, ws *websocket.Conn) rawWS {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(time.Second))
	var m rawWS
	if err := ws.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func nextStatePayload(t *testing.T, sub *bus.Subscription, timeout time.Duration) map[string]any {
	t.Helper()
	select {
	case m := <-sub.Channel():
		p, ok := m.Payload.(map[string]any)
		if !ok {
			t.Fatalf("state payload type %T", m.Payload)
		}
		return p
	case <-time.After(timeout):
		t.Fatal("timeout waiting for bridge state")
	}
	return nil
}

func assertLevelStatus(t *testing.T, p map[string]any, level, status string) {
	t.Helper()
	if p["level"] != level || p["status"] != status {
		t.Fatalf("state = %v/%v, want %s/%s", p["level"], p["status"], level, status)
	}
}
