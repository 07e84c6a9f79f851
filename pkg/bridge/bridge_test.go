package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// engineHandshake plays the engine side of the session handshake: consume the
// session.update and acknowledge it.
func engineHandshake(conn *websocket.Conn) bool {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return false
	}
	var msg map[string]any
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return false
	}
	if msg["type"] != "session.update" {
		return false
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"session.created"}`)) == nil
}

// newPhonePair returns both ends of a live websocket connection. The server
// side is what gets attached to the bridge as the telephony peer.
func newPhonePair(t *testing.T) (client, server *websocket.Conn) {
	t.Helper()
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("telephony pair never connected")
	}
	return client, server
}

func testOptions(url string) Options {
	return Options{
		CallID:         "CAtest0001",
		URL:            url,
		Voice:          "alloy",
		Language:       "en",
		Instructions:   "You are a helpful phone assistant.",
		ConnectTimeout: 2 * time.Second,
		HealthInterval: time.Hour, // keep the prober quiet during tests
		ReconnectDelay: 20 * time.Millisecond,
		MaxReconnects:  2,
	}
}

func waitEvent(t *testing.T, b *AudioBridge, want EventType) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-b.Events():
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}

func TestConnectEstablishesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if !engineHandshake(conn) {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	b := NewAudioBridge(testOptions(wsURL(srv)))
	defer b.Close("test done")

	require.NoError(t, b.Connect(context.Background()))
	assert.Equal(t, string(StateActive), b.Status().State)
	waitEvent(t, b, EventConnected)
}

func TestConnectAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	b := NewAudioBridge(testOptions(wsURL(srv)))
	err := b.Connect(context.Background())
	require.Error(t, err)

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
}

func TestConnectHandshakeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Swallow the session.update and never acknowledge.
		conn.ReadMessage()
		time.Sleep(2 * time.Second)
		conn.Close()
	}))
	defer srv.Close()

	opts := testOptions(wsURL(srv))
	opts.ConnectTimeout = 200 * time.Millisecond
	b := NewAudioBridge(opts)

	err := b.Connect(context.Background())
	require.Error(t, err)

	var hsErr *HandshakeTimeoutError
	require.ErrorAs(t, err, &hsErr)
}

func TestAttachTelephonyPeerOnce(t *testing.T) {
	_, server1 := newPhonePair(t)
	_, server2 := newPhonePair(t)

	b := NewAudioBridge(testOptions("ws://unused"))
	defer b.Close("test done")

	require.NoError(t, b.AttachTelephonyPeer(server1))

	err := b.AttachTelephonyPeer(server2)
	require.Error(t, err)
	var attached *AlreadyAttachedError
	require.ErrorAs(t, err, &attached)
	assert.Equal(t, "CAtest0001", attached.CallID)
}

func TestMediaRelayBothDirections(t *testing.T) {
	// Engine echoes every inbound audio chunk back as a response delta.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if !engineHandshake(conn) {
			return
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg audioAppend
			if sonic.Unmarshal(data, &msg) != nil || msg.Type != "input_audio_buffer.append" {
				continue
			}
			delta, _ := sonic.Marshal(map[string]string{
				"type":  "response.audio.delta",
				"delta": msg.Audio,
			})
			if conn.WriteMessage(websocket.TextMessage, delta) != nil {
				return
			}
		}
	}))
	defer srv.Close()

	phoneClient, phoneServer := newPhonePair(t)

	b := NewAudioBridge(testOptions(wsURL(srv)))
	defer b.Close("test done")

	require.NoError(t, b.Connect(context.Background()))
	require.NoError(t, b.AttachTelephonyPeer(phoneServer))

	start, _ := sonic.Marshal(TelephonyFrame{
		Event: "start",
		Start: &StartFrame{StreamSid: "MZ789", CallSid: "CAtest0001"},
	})
	require.NoError(t, phoneClient.WriteMessage(websocket.TextMessage, start))

	media, _ := sonic.Marshal(TelephonyFrame{
		Event: "media",
		Media: &MediaPayload{Track: "inbound", Payload: "bXVsYXctY2h1bms="},
	})
	require.NoError(t, phoneClient.WriteMessage(websocket.TextMessage, media))

	phoneClient.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := phoneClient.ReadMessage()
	require.NoError(t, err)

	var frame TelephonyFrame
	require.NoError(t, sonic.Unmarshal(data, &frame))
	assert.Equal(t, "media", frame.Event)
	assert.Equal(t, "MZ789", frame.StreamSid)
	require.NotNil(t, frame.Media)
	assert.Equal(t, "bXVsYXctY2h1bms=", frame.Media.Payload, "audio must round-trip unmodified")
}

func TestStopFrameClosesBridge(t *testing.T) {
	phoneClient, phoneServer := newPhonePair(t)

	var closedReason atomic.Value
	opts := testOptions("ws://unused")
	opts.OnClose = func(callID, reason string) { closedReason.Store(reason) }
	b := NewAudioBridge(opts)

	require.NoError(t, b.AttachTelephonyPeer(phoneServer))

	stop, _ := sonic.Marshal(TelephonyFrame{Event: "stop", StreamSid: "MZ789"})
	require.NoError(t, phoneClient.WriteMessage(websocket.TextMessage, stop))

	require.Eventually(t, func() bool {
		return b.Status().State == string(StateClosed)
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "caller hung up", closedReason.Load())
}

func TestCloseIdempotent(t *testing.T) {
	var closeCount atomic.Int32
	opts := testOptions("ws://unused")
	opts.OnClose = func(callID, reason string) { closeCount.Add(1) }
	b := NewAudioBridge(opts)

	b.Close("first")
	b.Close("second")
	b.Close("third")

	assert.Equal(t, int32(1), closeCount.Load())
	assert.Equal(t, string(StateClosed), b.Status().State)

	assert.ErrorIs(t, b.Connect(context.Background()), ErrBridgeClosed)
	_, server := newPhonePair(t)
	assert.ErrorIs(t, b.AttachTelephonyPeer(server), ErrBridgeClosed)
}

func TestReconnectAfterEngineDrop(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if !engineHandshake(conn) {
			return
		}
		if conns.Add(1) == 1 {
			// First session dies right after the handshake.
			conn.Close()
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	b := NewAudioBridge(testOptions(wsURL(srv)))
	defer b.Close("test done")

	require.NoError(t, b.Connect(context.Background()))
	waitEvent(t, b, EventDisconnected)
	waitEvent(t, b, EventConnected)

	require.Eventually(t, func() bool {
		return b.Status().State == string(StateActive)
	}, 3*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
	assert.Equal(t, 0, b.Status().ReconnectAttempts, "attempt counter resets on success")
}

func TestReconnectExhaustionClosesBridge(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if conns.Add(1) > 1 {
			http.Error(w, "unavailable", http.StatusInternalServerError)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if !engineHandshake(conn) {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	var closedReason atomic.Value
	opts := testOptions(wsURL(srv))
	opts.MaxReconnects = 2
	opts.OnClose = func(callID, reason string) { closedReason.Store(reason) }
	b := NewAudioBridge(opts)

	require.NoError(t, b.Connect(context.Background()))

	require.Eventually(t, func() bool {
		return b.Status().State == string(StateClosed)
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "reconnect attempts exhausted", closedReason.Load())
}
