package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatnet/internal/core/domain"
	"chatnet/internal/core/services"
	"chatnet/internal/infrastructure/monitoring"
	"chatnet/internal/infrastructure/repositories/memory"
	"chatnet/pkg/config"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	ts   *httptest.Server
	auth services.AuthService
	chat services.ChatService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := memory.NewMemoryUserRepository()
	messages := memory.NewMemoryMessageRepository()
	auth := services.NewAuthService(users, "test-secret", time.Hour, 4)
	chat := services.NewChatService(users, messages)

	cfg := config.DefaultConfig()
	collector := monitoring.NewPrometheusCollector(prometheus.NewRegistry())
	srv := NewServer(NewHub(), auth, chat, cfg, collector, zap.NewNop().Sugar())

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, auth: auth, chat: chat}
}

func (e *testEnv) register(t *testing.T, username string) (*domain.User, string) {
	t.Helper()
	user, token, err := e.auth.Register(context.Background(), username, "password123")
	require.NoError(t, err)
	return user, token
}

func (e *testEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame reads frames until one of the wanted type arrives, skipping
// interleaved presence traffic.
func readFrame(t *testing.T, conn *websocket.Conn, frameType string) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)

		var frame map[string]interface{}
		require.NoError(t, json.Unmarshal(payload, &frame))
		if frame["type"] == frameType {
			return frame
		}
	}
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame map[string]interface{}) {
	t.Helper()
	payload, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

// presenceUsers decodes the users list of a presence frame into
// id -> online.
func presenceUsers(t *testing.T, frame map[string]interface{}) map[string]bool {
	t.Helper()
	users, ok := frame["users"].([]interface{})
	require.True(t, ok)

	online := make(map[string]bool, len(users))
	for _, raw := range users {
		entry, ok := raw.(map[string]interface{})
		require.True(t, ok)
		online[entry["id"].(string)], _ = entry["online"].(bool)
	}
	return online
}

func TestHandleWebSocket_RejectsBadToken(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "?token=garbage"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Nil(t, conn)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWebSocket_RejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.ts.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWebSocket_PresenceOnConnect(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.register(t, "alice")
	bob, _ := env.register(t, "bob")

	conn := env.dial(t, aliceToken)

	frame := readFrame(t, conn, FramePresence)
	online := presenceUsers(t, frame)
	assert.True(t, online[string(alice.ID)])
	assert.False(t, online[string(bob.ID)])
}

func TestHandleWebSocket_DMRoundTripWithEcho(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.register(t, "alice")
	bob, bobToken := env.register(t, "bob")

	aliceConn := env.dial(t, aliceToken)
	bobConn := env.dial(t, bobToken)

	sendFrame(t, aliceConn, map[string]interface{}{
		"type": FrameDM,
		"to":   string(bob.ID),
		"text": "hello bob",
	})

	delivered := readFrame(t, bobConn, FrameDM)
	echoed := readFrame(t, aliceConn, FrameDM)

	// Both copies carry the same server-assigned identity.
	assert.Equal(t, delivered["id"], echoed["id"])
	assert.NotEmpty(t, delivered["id"])
	assert.Equal(t, string(alice.ID), delivered["from"])
	assert.Equal(t, string(bob.ID), delivered["to"])
	assert.Equal(t, "hello bob", delivered["text"])
	assert.Greater(t, delivered["ts"].(float64), float64(0))

	// And the record is persisted.
	history, err := env.chat.History(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello bob", history[0].Text)
}

func TestHandleWebSocket_DMToOfflineUserIsPersisted(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.register(t, "alice")
	bob, _ := env.register(t, "bob")

	aliceConn := env.dial(t, aliceToken)

	sendFrame(t, aliceConn, map[string]interface{}{
		"type": FrameDM,
		"to":   string(bob.ID),
		"text": "read this later",
	})

	// Sender still gets the echo.
	echoed := readFrame(t, aliceConn, FrameDM)
	assert.Equal(t, "read this later", echoed["text"])

	history, err := env.chat.History(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestHandleWebSocket_SelfDMRejectedStreamStaysOpen(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.register(t, "alice")
	bob, bobToken := env.register(t, "bob")

	aliceConn := env.dial(t, aliceToken)
	bobConn := env.dial(t, bobToken)

	sendFrame(t, aliceConn, map[string]interface{}{
		"type": FrameDM,
		"to":   string(alice.ID),
		"text": "note to self",
	})

	// The rejected frame leaves no trace and the stream keeps working.
	sendFrame(t, aliceConn, map[string]interface{}{
		"type": FrameDM,
		"to":   string(bob.ID),
		"text": "still here",
	})
	delivered := readFrame(t, bobConn, FrameDM)
	assert.Equal(t, "still here", delivered["text"])

	history, err := env.chat.History(context.Background(), alice.ID, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHandleWebSocket_MalformedFrameIgnored(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.register(t, "alice")
	bob, bobToken := env.register(t, "bob")

	aliceConn := env.dial(t, aliceToken)
	bobConn := env.dial(t, bobToken)

	require.NoError(t, aliceConn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, aliceConn.WriteMessage(websocket.TextMessage, []byte(`{"type":"weird"}`)))

	sendFrame(t, aliceConn, map[string]interface{}{
		"type": FrameDM,
		"to":   string(bob.ID),
		"text": "survived",
	})
	delivered := readFrame(t, bobConn, FrameDM)
	assert.Equal(t, "survived", delivered["text"])
}

func TestHandleWebSocket_OversizedFrameDroppedStreamStaysOpen(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.register(t, "alice")
	bob, bobToken := env.register(t, "bob")

	aliceConn := env.dial(t, aliceToken)
	bobConn := env.dial(t, bobToken)

	// A frame over the 64 KiB cap is dropped without closing the
	// stream.
	sendFrame(t, aliceConn, map[string]interface{}{
		"type": FrameDM,
		"to":   string(bob.ID),
		"text": strings.Repeat("x", 70*1024),
	})

	sendFrame(t, aliceConn, map[string]interface{}{
		"type": FrameDM,
		"to":   string(bob.ID),
		"text": "still alive",
	})
	delivered := readFrame(t, bobConn, FrameDM)
	assert.Equal(t, "still alive", delivered["text"])

	// The oversized frame left no trace.
	history, err := env.chat.History(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "still alive", history[0].Text)
}

func TestHandleWebSocket_SignalRelayedVerbatim(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.register(t, "alice")
	bob, bobToken := env.register(t, "bob")

	aliceConn := env.dial(t, aliceToken)
	bobConn := env.dial(t, bobToken)

	sendFrame(t, aliceConn, map[string]interface{}{
		"type": FrameSignal,
		"to":   string(bob.ID),
		"kind": "offer",
		"sdp":  "v=0 fake-session-description",
		"meta": map[string]interface{}{"video": true},
		"from": "spoofed-sender",
	})

	relayed := readFrame(t, bobConn, FrameSignal)
	assert.Equal(t, "offer", relayed["kind"])
	assert.Equal(t, "v=0 fake-session-description", relayed["sdp"])
	assert.Equal(t, map[string]interface{}{"video": true}, relayed["meta"])
	// The sender identity is stamped from the verified token, never
	// taken from the payload.
	assert.Equal(t, string(alice.ID), relayed["from"])
}

func TestHandleWebSocket_SignalToOfflineUserDropped(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.register(t, "alice")
	bob, bobToken := env.register(t, "bob")

	aliceConn := env.dial(t, aliceToken)

	sendFrame(t, aliceConn, map[string]interface{}{
		"type": FrameSignal,
		"to":   "nobody-home",
		"kind": "offer",
	})

	// Prove the relay did not crash or queue anything by doing a normal
	// relay right after.
	bobConn := env.dial(t, bobToken)
	sendFrame(t, aliceConn, map[string]interface{}{
		"type": FrameSignal,
		"to":   string(bob.ID),
		"kind": "offer",
	})
	relayed := readFrame(t, bobConn, FrameSignal)
	assert.Equal(t, "offer", relayed["kind"])
}

func TestHandleWebSocket_NewStreamDisplacesOld(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.register(t, "alice")
	_, bobToken := env.register(t, "bob")

	first := env.dial(t, aliceToken)
	readFrame(t, first, FramePresence)

	second := env.dial(t, aliceToken)
	readFrame(t, second, FramePresence)

	// The displaced stream is closed by the server.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	// The replacement stream receives traffic for the user.
	bobConn := env.dial(t, bobToken)
	sendFrame(t, bobConn, map[string]interface{}{
		"type": FrameDM,
		"to":   string(alice.ID),
		"text": "to the new stream",
	})
	delivered := readFrame(t, second, FrameDM)
	assert.Equal(t, "to the new stream", delivered["text"])
}

func TestHandleWebSocket_PresenceAfterDisconnect(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.register(t, "alice")
	bob, bobToken := env.register(t, "bob")

	aliceConn := env.dial(t, aliceToken)
	readFrame(t, aliceConn, FramePresence)

	bobConn := env.dial(t, bobToken)
	// Alice sees bob come online.
	for {
		frame := readFrame(t, aliceConn, FramePresence)
		if presenceUsers(t, frame)[string(bob.ID)] {
			break
		}
	}

	aliceConn.Close()

	// Bob eventually sees alice go offline.
	deadline := time.Now().Add(2 * time.Second)
	for {
		frame := readFrame(t, bobConn, FramePresence)
		if !presenceUsers(t, frame)[string(alice.ID)] {
			break
		}
		require.True(t, time.Now().Before(deadline), "alice never went offline")
	}
}
