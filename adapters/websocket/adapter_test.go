package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"gamifyd/core"
	"gamifyd/realtime"
)

func TestHandlerStreamsCompanyEvents(t *testing.T) {
	hub := realtime.NewHub()
	resolve := func(r *http.Request) (string, error) { return "c1", nil }
	server := httptest.NewServer(Handler(hub, resolve))
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):] // convert http->ws
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// ensure subscriber goroutine is ready
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(context.Background(), core.NewXPGained("c2", "mallory", 5, 5))
	hub.Broadcast(context.Background(), core.NewXPGained("c1", "alice", 5, 5))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var received core.Event
	require.NoError(t, json.Unmarshal(msg, &received))
	require.Equal(t, "alice", received.UserID, "other tenants' events must not leak")
}

func TestHandlerRejectsUnauthorized(t *testing.T) {
	hub := realtime.NewHub()
	resolve := func(r *http.Request) (string, error) { return "", context.Canceled }
	server := httptest.NewServer(Handler(hub, resolve))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
