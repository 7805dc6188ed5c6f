package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickops/fieldsync/internal/events"
)

func testLogger() *events.Logger {
	return events.NewTestLogger(events.ErrorLevel, "text", os.Stderr)
}

func TestHubBroadcastRoundTrip(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	defer hub.Stop()

	server := httptest.NewServer(hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait for the registration to land.
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	sent := Event{
		Type:      EventSnapshot,
		Channel:   "dashboard",
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"building_id": "B-1", "score": float64(75)},
	}
	hub.Broadcast(sent)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, EventSnapshot, got.Type)
	assert.Equal(t, "dashboard", got.Channel)

	payload, ok := got.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "B-1", payload["building_id"])
	assert.Equal(t, float64(75), payload["score"])
}

func TestHubDisconnectsOnStop(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	server := httptest.NewServer(hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	hub.Stop()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestStoppedHubDoesNotBlockClientTeardown(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	server := httptest.NewServer(hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	hub.Stop()

	// The client's read loop unregisters after Run has exited; the
	// send must not hang once the hub is down.
	released := make(chan struct{})
	go func() {
		select {
		case hub.unregister <- &client{}:
		case <-hub.done:
		}
		close(released)
	}()

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("unregister blocked after Stop")
	}

	// New connections are refused cleanly rather than parked forever.
	late, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer late.Close()

	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = late.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestWebhookNotifierPostsAlert(t *testing.T) {
	var got Alert
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, testLogger())
	alert := Alert{
		BuildingID: "B-1",
		Score:      42,
		Band:       "critical",
		Message:    "building dropped into critical band",
		At:         time.Now().UTC(),
	}
	require.NoError(t, n.Notify(context.Background(), alert))
	assert.Equal(t, "B-1", got.BuildingID)
	assert.Equal(t, 42, got.Score)
}

func TestWebhookNotifierSwallowsNetworkErrors(t *testing.T) {
	n := NewWebhookNotifier("http://127.0.0.1:1/unreachable", testLogger())
	assert.NoError(t, n.Notify(context.Background(), Alert{BuildingID: "B-1"}))
}
