package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gravitas-games/gridstash/internal/config"
	"github.com/gravitas-games/gridstash/internal/network"
	"github.com/gravitas-games/gridstash/internal/store"
	"github.com/gravitas-games/gridstash/pkg/inventory"
	"github.com/gravitas-games/gridstash/pkg/models"
)

type staticTokens map[string]*models.Player

func (s staticTokens) ValidateToken(token string) (*models.Player, error) {
	p, ok := s[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	cp := *p
	return &cp, nil
}

type wireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type testServer struct {
	srv   *Server
	http  *httptest.Server
	store *store.MemoryStore
}

func testCatalog() *inventory.Registry {
	return inventory.NewRegistry(
		inventory.ItemDetails{ID: "rock", Tags: []string{"stone"}, MaxStack: 10, Footprint: inventory.Size{W: 1, H: 1}},
		inventory.ItemDetails{ID: "leaf", Tags: []string{"food"}, MaxStack: 5, Footprint: inventory.Size{W: 1, H: 1},
			Perishable: true, PerishSeconds: 1},
	)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg, err := config.Parse([]byte("inventory:\n  backpack:\n    grid: {w: 4, h: 4}\n    perish_multiplier: 1\n"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	codec, err := store.NewCodec("fastest")
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	mem := store.NewMemoryStore(codec)
	srv, err := NewWithDeps(cfg, Deps{
		Catalog: testCatalog(),
		Store:   mem,
		Tokens: staticTokens{
			"alice": {ID: "1", Username: "alice", Activated: 1},
			"bob":   {ID: "2", Username: "bob", Activated: 1},
		},
		Log: quietLogger(),
	})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown()
	})
	return &testServer{srv: srv, http: ts, store: mem}
}

func (ts *testServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) wireMessage {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg wireMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func send(t *testing.T, ws *websocket.Conn, raw string) {
	t.Helper()
	if err := ws.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readResult(t *testing.T, ws *websocket.Conn) network.ResultPayload {
	t.Helper()
	msg := readMessage(t, ws)
	if msg.Type != network.MsgTypeResult {
		t.Fatalf("expected a result, got %s: %s", msg.Type, msg.Payload)
	}
	var res network.ResultPayload
	if err := json.Unmarshal(msg.Payload, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return res
}

func readWelcome(t *testing.T, ws *websocket.Conn) network.WelcomePayload {
	t.Helper()
	msg := readMessage(t, ws)
	if msg.Type != network.MsgTypeWelcome {
		t.Fatalf("expected welcome, got %s", msg.Type)
	}
	var w network.WelcomePayload
	if err := json.Unmarshal(msg.Payload, &w); err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	return w
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.http.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Status != "ok" {
		t.Fatalf("unexpected health response %+v %v", body, err)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	ts := newTestServer(t)
	for _, url := range []string{ts.http.URL + "/ws", ts.http.URL + "/ws?token=mallory"} {
		resp, err := http.Get(url)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", url, resp.StatusCode)
		}
	}
}

func TestIntentRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	ws := ts.dial(t, "alice")

	welcome := readWelcome(t, ws)
	if welcome.PlayerID != "1" || len(welcome.Snapshot.Containers) != 1 {
		t.Fatalf("unexpected welcome %+v", welcome)
	}

	send(t, ws, `{"type":"add_item","request_id":"a1","payload":{"item":"rock","count":12}}`)
	res := readResult(t, ws)
	if !res.OK || res.RequestID != "a1" || res.Intent != network.MsgTypeAddItem {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Diff.Containers) != 1 || len(res.Diff.Containers[0].Added) != 2 || res.Diff.Revision != 1 {
		t.Fatalf("expected two new stacks in revision 1, got %+v", res.Diff)
	}

	res0 := res
	first := res.Diff.Containers[0].Added[0].Instance.ID
	send(t, ws, fmt.Sprintf(`{"type":"split_item","payload":{"container":"bp","instance":"%s","amount":50}}`, first))
	res = readResult(t, ws)
	if res.OK || res.Error == nil || res.Error.Code != network.CodeInvalidArgument || !res.Diff.Empty() {
		t.Fatalf("expected an invalid_argument rejection, got %+v", res)
	}

	send(t, ws, `{"type":"add_item","payload":{"item":"rock"}}`)
	if msg := readMessage(t, ws); msg.Type != network.MsgTypeError {
		t.Fatalf("schema violation should produce an error message, got %s", msg.Type)
	}

	var full inventory.InstanceID
	for _, e := range res0.Diff.Containers[0].Added {
		if e.Instance.Count == 10 {
			full = e.Instance.ID
		}
	}
	send(t, ws, fmt.Sprintf(`{"type":"split_item","payload":{"container":"bp","instance":"%s","amount":3}}`, full))
	res = readResult(t, ws)
	if !res.OK || res.Diff.Revision != 2 {
		t.Fatalf("split should commit revision 2, got %+v", res)
	}

	send(t, ws, `{"type":"merge_all"}`)
	res = readResult(t, ws)
	if !res.OK || res.Diff.Revision != 3 || res.Diff.Empty() {
		t.Fatalf("merge_all should consolidate the split stacks, got %+v", res)
	}

	ws.Close()
	waitFor(t, "inventory save", func() bool { return ts.store.Len() == 1 })
	snap, err := ts.store.Load(context.Background(), "1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	inv, err := inventory.Restore(snap, testCatalog())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	defer inv.Close()
	if inv.UnitCount("rock") != 12 {
		t.Fatalf("expected 12 rocks saved, got %d", inv.UnitCount("rock"))
	}

	ws = ts.dial(t, "alice")
	defer ws.Close()
	welcome = readWelcome(t, ws)
	if welcome.Snapshot.Revision != 3 || len(welcome.Snapshot.Containers[0].Entries) != 2 {
		t.Fatalf("reconnect should restore the saved inventory, got %+v", welcome.Snapshot)
	}
}

func TestDuplicateConnectionRejected(t *testing.T) {
	ts := newTestServer(t)
	ws := ts.dial(t, "bob")
	defer ws.Close()
	readWelcome(t, ws)

	second := ts.dial(t, "bob")
	defer second.Close()
	second.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := second.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected a policy violation close, got %v", err)
	}
}

func TestPerishPushesDiff(t *testing.T) {
	ts := newTestServer(t)
	ws := ts.dial(t, "alice")
	defer ws.Close()
	readWelcome(t, ws)

	send(t, ws, `{"type":"add_item","payload":{"item":"leaf","count":1}}`)
	if res := readResult(t, ws); !res.OK {
		t.Fatalf("add leaf: %+v", res)
	}

	// the decay diff is pushed before the per-unit perished notice
	msg := readMessage(t, ws)
	if msg.Type != network.MsgTypeDiff {
		t.Fatalf("expected the perish diff first, got %s", msg.Type)
	}
	var d network.DiffPayload
	json.Unmarshal(msg.Payload, &d)
	if d.Reason != inventory.IntentPerishTick || len(d.Diff.Containers) != 1 || len(d.Diff.Containers[0].Removed) != 1 {
		t.Fatalf("unexpected diff %+v", d)
	}

	msg = readMessage(t, ws)
	if msg.Type != network.MsgTypePerished {
		t.Fatalf("expected perished after the diff, got %s", msg.Type)
	}
	var p network.PerishedPayload
	json.Unmarshal(msg.Payload, &p)
	if p.Item != "leaf" || p.Count != 1 {
		t.Fatalf("unexpected perished payload %+v", p)
	}
}

func TestCatalogMessage(t *testing.T) {
	ts := newTestServer(t)
	ws := ts.dial(t, "bob")
	defer ws.Close()
	readWelcome(t, ws)

	send(t, ws, `{"type":"catalog","request_id":"c1"}`)
	res := readResult(t, ws)
	if !res.OK || res.RequestID != "c1" {
		t.Fatalf("catalog request failed: %+v", res)
	}
	raw, _ := json.Marshal(res.Data)
	var cat network.CatalogPayload
	if err := json.Unmarshal(raw, &cat); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	if len(cat.Items) != 2 || cat.Items[0].ID != "rock" || cat.Items[1].ID != "leaf" {
		t.Fatalf("expected rock then leaf by registry id, got %+v", cat.Items)
	}
}
