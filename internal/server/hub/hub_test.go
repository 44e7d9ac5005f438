package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gidence/scm/internal/server/store"
)

type staticPresence map[string]int64

func (p staticPresence) Snapshot() map[string]int64 { return p }

func httpHandler(h *Hub) http.Handler {
	return http.HandlerFunc(h.ServeWS)
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func connect(t *testing.T, conn *websocket.Conn, userID string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]string{"connect": userID}))
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]json.RawMessage
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestConnectReceivesPresenceSnapshot(t *testing.T) {
	h := New(staticPresence{"proc-1": 123456})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(httpHandler(h))
	defer srv.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	connect(t, conn, "user-1")

	frame := readFrame(t, conn)
	require.Contains(t, frame, "processor")
	var leases map[string]int64
	require.NoError(t, json.Unmarshal(frame["processor"], &leases))
	assert.EqualValues(t, 123456, leases["proc-1"])

	waitFor(t, func() bool { return h.ConnectedUsers()["user-1"] })
}

func TestBroadcastSkipsAnonymousClients(t *testing.T) {
	h := New(staticPresence{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(httpHandler(h))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	identified := dial(t, url)
	connect(t, identified, "user-1")
	readFrame(t, identified) // presence snapshot

	anonymous := dial(t, url)

	waitFor(t, func() bool { return h.ConnectedUsers()["user-1"] })
	h.Broadcast(LeftMessage("proc-9"))

	frame := readFrame(t, identified)
	require.Contains(t, frame, "left")
	var id string
	require.NoError(t, json.Unmarshal(frame["left"], &id))
	assert.Equal(t, "proc-9", id)

	require.NoError(t, anonymous.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var discard map[string]json.RawMessage
	assert.Error(t, anonymous.ReadJSON(&discard), "anonymous socket must not receive broadcasts")
}

func TestSendToUserTargetsOnlyThatUser(t *testing.T) {
	h := New(staticPresence{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(httpHandler(h))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	a := dial(t, url)
	connect(t, a, "user-a")
	readFrame(t, a)
	b := dial(t, url)
	connect(t, b, "user-b")
	readFrame(t, b)

	waitFor(t, func() bool {
		users := h.ConnectedUsers()
		return users["user-a"] && users["user-b"]
	})

	assert.True(t, h.SendToUser("user-a", DigestMessage([]store.EvidenceView{{ID: "ev-1"}})))

	frame := readFrame(t, a)
	assert.Contains(t, frame, "digest")

	require.NoError(t, b.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var discard map[string]json.RawMessage
	assert.Error(t, b.ReadJSON(&discard))

	assert.False(t, h.SendToUser("nobody", LeftMessage("x")))
}

func TestLiteralDisconnectDeidentifies(t *testing.T) {
	h := New(staticPresence{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(httpHandler(h))
	defer srv.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	connect(t, conn, "user-1")
	readFrame(t, conn)
	waitFor(t, func() bool { return h.ConnectedUsers()["user-1"] })

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("disconnect")))
	waitFor(t, func() bool { return !h.ConnectedUsers()["user-1"] })
}

func TestCloseDeregisters(t *testing.T) {
	h := New(staticPresence{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(httpHandler(h))
	defer srv.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	connect(t, conn, "user-1")
	readFrame(t, conn)
	waitFor(t, func() bool { return h.ConnectedUsers()["user-1"] })

	conn.Close()
	waitFor(t, func() bool { return len(h.ConnectedUsers()) == 0 })
}

func TestFanoutDropsStalledClientOnly(t *testing.T) {
	h := New(staticPresence{})

	healthy := newClient(h, nil)
	healthy.setUser("user-a")
	stalled := newClient(h, nil)
	stalled.setUser("user-b")
	// A client that stopped draining: its send buffer is already full.
	for i := 0; i < sendBuffer; i++ {
		stalled.send <- []byte("backlog")
	}
	h.clients[healthy] = true
	h.clients[stalled] = true

	h.fanout(LeftMessage("proc-1"))

	require.Len(t, healthy.send, 1)
	assert.Equal(t, string(LeftMessage("proc-1")), string(<-healthy.send))

	h.mu.RLock()
	_, healthyKept := h.clients[healthy]
	_, stalledKept := h.clients[stalled]
	h.mu.RUnlock()
	assert.True(t, healthyKept, "draining client stays registered")
	assert.False(t, stalledKept, "stalled client must be dropped")

	// The dropped client's channel is closed behind its backlog.
	for i := 0; i < sendBuffer; i++ {
		<-stalled.send
	}
	_, open := <-stalled.send
	assert.False(t, open)
}

func TestEvidenceMessageShape(t *testing.T) {
	msg := EvidenceMessage(store.EvidenceView{ID: "ev-1", Cluster: "Plant A"})
	var frame map[string]store.EvidenceView
	require.NoError(t, json.Unmarshal(msg, &frame))
	assert.Equal(t, "ev-1", frame["evidence"].ID)
	assert.Equal(t, "Plant A", frame["evidence"].Cluster)
}
