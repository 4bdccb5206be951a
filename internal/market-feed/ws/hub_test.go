package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const mkt = "0x00000000000000000000000000000000000000aa"

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMsg(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var out map[string]any
	require.NoError(t, c.ReadJSON(&out))
	return out
}

func newServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := NewHub(zap.NewNop(), func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(srv.Close)
	return h, srv
}

func TestHub_SubscribeAndBroadcast(t *testing.T) {
	h, srv := newServer(t)
	a, b := dial(t, srv), dial(t, srv)

	require.NoError(t, a.WriteJSON(ClientMsg{Type: "subscribe", Market: mkt}))
	ack := readMsg(t, a)
	assert.Equal(t, "subscribed", ack["type"])
	assert.Equal(t, 1, h.Subscribers(mkt))

	require.NoError(t, b.WriteJSON(ClientMsg{Type: "ping"}))
	assert.Equal(t, "pong", readMsg(t, b)["type"])

	sent := h.Broadcast(MarketUpdate{Market: "0x" + strings.ToUpper(mkt[2:]), Seq: 9, Kind: "resolved", Payload: json.RawMessage(`{"outcome":"A"}`)})
	assert.Equal(t, 1, sent)

	got := readMsg(t, a)
	assert.Equal(t, "resolved", got["kind"])
	assert.EqualValues(t, 9, got["seq"])
}

func TestHub_InvalidAndUnsubscribe(t *testing.T) {
	h, srv := newServer(t)
	c := dial(t, srv)

	require.NoError(t, c.WriteJSON(ClientMsg{Type: "subscribe", Market: "nope"}))
	assert.Equal(t, "error", readMsg(t, c)["type"])

	require.NoError(t, c.WriteJSON(ClientMsg{Type: "subscribe", Market: mkt}))
	readMsg(t, c)
	require.NoError(t, c.WriteJSON(ClientMsg{Type: "unsubscribe", Market: mkt}))
	// ping garante que o unsubscribe já foi processado
	require.NoError(t, c.WriteJSON(ClientMsg{Type: "ping"}))
	readMsg(t, c)

	assert.Equal(t, 0, h.Subscribers(mkt))
	assert.Equal(t, 0, h.Broadcast(MarketUpdate{Market: mkt}))
	assert.Equal(t, 0, h.Broadcast(MarketUpdate{Market: "bad"}))
}

func TestHub_DisconnectDropsSubscriptions(t *testing.T) {
	h, srv := newServer(t)
	conns := make(chan int, 4)
	h.OnConnect = func(delta int) { conns <- delta }
	c := dial(t, srv)

	require.NoError(t, c.WriteJSON(ClientMsg{Type: "subscribe", Market: mkt}))
	readMsg(t, c)
	require.Equal(t, 1, <-conns)
	require.NoError(t, c.Close())

	select {
	case d := <-conns:
		assert.Equal(t, -1, d)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not observed")
	}
	assert.Equal(t, 0, h.Subscribers(mkt))
}
