package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnection_SendDropsOnFullBuffer(t *testing.T) {
	// No write loop is started, so the buffer only fills.
	c := NewConnection("u1", nil)

	for i := 0; i < sendBufferSize; i++ {
		require.NoError(t, c.Send([]byte("x")))
	}
	assert.False(t, c.Degraded())

	err := c.Send([]byte("overflow"))
	assert.Error(t, err)
	assert.True(t, c.Degraded(), "a drop marks the connection degraded")
	assert.Equal(t, int64(1), c.Dropped())

	// Further drops accumulate; earlier buffered sends are untouched.
	_ = c.Send([]byte("overflow"))
	assert.Equal(t, int64(2), c.Dropped())
	assert.Len(t, c.send, sendBufferSize)
}

func TestConnection_UniqueIDs(t *testing.T) {
	a := NewConnection("u1", nil)
	b := NewConnection("u1", nil)

	assert.Equal(t, "u1", a.UserID())
	assert.NotEqual(t, a.ID(), b.ID(), "reconnects get fresh connection ids")
}

func TestConnection_DeliversOverSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	connCh := make(chan *Connection, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		c := NewConnection("u1", ws)
		c.Start()
		connCh <- c
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	conn := <-connCh
	require.NoError(t, conn.Send([]byte(`{"type":"pong"}`)))

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.JSONEq(t, `{"type":"pong"}`, string(data))

	conn.Close(websocket.CloseNormalClosure, "done")

	// Close is idempotent and later sends fail fast.
	conn.Close(websocket.CloseNormalClosure, "done")
	assert.Error(t, conn.Send([]byte("late")))
}
