package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetpulse/fleetpulse/pkg/types"
	"github.com/fleetpulse/fleetpulse/server/internal/store"
	wsHub "github.com/fleetpulse/fleetpulse/server/internal/ws"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

func newStore(reports ...*types.Report) *store.Store {
	st := store.New(5 * time.Minute)
	for _, r := range reports {
		st.Put(r)
	}
	return st
}

func report(agent string, score float64) *types.Report {
	return &types.Report{
		ID:      agent + "-1",
		AgentID: agent,
		Cycle:   1,
		Health:  types.FleetHealth{OverallScore: score, Status: types.StatusGood},
	}
}

// startHub starts a test HTTP server with the hub as its handler.
// The hub's Run loop is started with a cancellable context.
func startHub(t *testing.T, st *store.Store, interval time.Duration) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	hub = wsHub.New(st, interval)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// readMessage reads one message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return env
}

// readUntil reads messages until one with the given event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) envelope {
	t.Helper()
	for i := 0; i < 50; i++ {
		if env := readMessage(t, conn); env.Event == event {
			return env
		}
	}
	t.Fatalf("no %q event received", event)
	return envelope{}
}

type overview struct {
	GeneratedAt string `json:"generated_at"`
	Fleets      []struct {
		AgentID string `json:"agent_id"`
	} `json:"fleets"`
}

func decodeOverview(t *testing.T, env envelope) overview {
	t.Helper()
	var o overview
	if err := json.Unmarshal(env.Data, &o); err != nil {
		t.Fatalf("decode overview: %v", err)
	}
	return o
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateOverview(t *testing.T) {
	wsURL, _, _ := startHub(t, newStore(report("plant-a", 80)), time.Hour)

	env := readMessage(t, dial(t, wsURL))
	if env.Event != wsHub.EventOverview {
		t.Errorf("event: got %v, want overview", env.Event)
	}
	o := decodeOverview(t, env)
	if o.GeneratedAt == "" {
		t.Error("generated_at: missing")
	}
	if len(o.Fleets) != 1 || o.Fleets[0].AgentID != "plant-a" {
		t.Errorf("fleets: got %+v", o.Fleets)
	}
}

func TestHub_EmptyStore_EmptyFleets(t *testing.T) {
	wsURL, _, _ := startHub(t, newStore(), time.Hour)
	o := decodeOverview(t, readMessage(t, dial(t, wsURL)))
	if o.Fleets == nil || len(o.Fleets) != 0 {
		t.Errorf("fleets: got %v, want []", o.Fleets)
	}
}

func TestHub_CountClients(t *testing.T) {
	wsURL, hub, _ := startHub(t, newStore(), time.Hour)

	for i := 0; i < 3; i++ {
		readMessage(t, dial(t, wsURL)) // consume initial message
	}

	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}
}

func TestHub_CountClients_DecreasesOnDisconnect(t *testing.T) {
	wsURL, hub, _ := startHub(t, newStore(), time.Hour)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	if n := hub.Count(); n != 1 {
		t.Errorf("Count before disconnect: got %d, want 1", n)
	}

	conn.Close()
	time.Sleep(50 * time.Millisecond) // let readPump detect the close

	if n := hub.Count(); n != 0 {
		t.Errorf("Count after disconnect: got %d, want 0", n)
	}
}

func TestHub_ReceivesOverviewOnTick(t *testing.T) {
	st := newStore()
	wsURL, _, _ := startHub(t, st, testInterval)

	conn := dial(t, wsURL)
	readMessage(t, conn) // immediate overview, empty store

	st.Put(report("new-agent", 75))

	// Ticks keep coming; wait for one that includes the new agent.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		o := decodeOverview(t, readUntil(t, conn, wsHub.EventOverview))
		if len(o.Fleets) == 1 && o.Fleets[0].AgentID == "new-agent" {
			return
		}
	}
	t.Fatal("tick broadcast never included new-agent")
}

func TestHub_PublishReport(t *testing.T) {
	wsURL, hub, _ := startHub(t, newStore(), time.Hour)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	hub.PublishReport(report("plant-b", 42))

	env := readUntil(t, conn, wsHub.EventReport)
	var got types.Report
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if got.AgentID != "plant-b" || got.Health.OverallScore != 42 {
		t.Errorf("report: got %+v", got)
	}
}

func TestHub_PublishEvicted(t *testing.T) {
	wsURL, hub, _ := startHub(t, newStore(), time.Hour)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	hub.PublishEvicted([]string{"gone"})

	env := readUntil(t, conn, wsHub.EventEvicted)
	if !strings.Contains(string(env.Data), `"gone"`) {
		t.Errorf("evicted data: got %s", env.Data)
	}
}

func TestHub_AllClientsReceiveBroadcast(t *testing.T) {
	wsURL, hub, _ := startHub(t, newStore(), time.Hour)

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, wsURL)
		readMessage(t, conns[i])
	}
	time.Sleep(10 * time.Millisecond)

	hub.PublishReport(report("plant-c", 90))
	for i, conn := range conns {
		if env := readMessage(t, conn); env.Event != wsHub.EventReport {
			t.Errorf("client %d: event: got %v, want report", i, env.Event)
		}
	}
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	wsURL, hub, cancel := startHub(t, newStore(), time.Hour)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	cancel()

	time.Sleep(50 * time.Millisecond)
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after cancel: got %d, want 0", n)
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	hub := wsHub.New(newStore(), testInterval)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
