package bridge

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/LingByte/LingBridge/pkg/logger"
)

// State is the bridge lifecycle state.
type State string

const (
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateDegraded   State = "degraded"
	StateClosed     State = "closed"
)

// Options configures an AudioBridge.
type Options struct {
	CallID       string
	URL          string // engine websocket endpoint
	APIKey       string
	Model        string
	Voice        string
	Language     string
	Instructions string

	ConnectTimeout time.Duration
	HealthInterval time.Duration
	ReconnectDelay time.Duration // base delay, multiplied by the attempt number
	MaxReconnects  int

	Dispatcher *Dispatcher
	OnClose    func(callID, reason string)
}

// AudioBridge relays audio between one telephony media stream and one
// realtime engine session. Audio payloads pass through base64-encoded and
// untouched in both directions.
type AudioBridge struct {
	opts Options

	mu          sync.Mutex
	state       State
	engine      *websocket.Conn
	phone       *websocket.Conn
	streamSid   string
	attempts    int
	lastHealthy time.Time
	startedAt   time.Time

	engineWriteMu  sync.Mutex
	phoneWriteMu   sync.Mutex
	reconnectTimer *time.Timer
	healthOnce     sync.Once
	closeOnce      sync.Once
	done           chan struct{}
	events         chan Event
}

// NewAudioBridge creates a bridge in the Connecting state. Connect must be
// called before any audio flows.
func NewAudioBridge(opts Options) *AudioBridge {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = 10 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = 3
	}
	return &AudioBridge{
		opts:      opts,
		state:     StateConnecting,
		startedAt: time.Now(),
		done:      make(chan struct{}),
		events:    make(chan Event, 64),
	}
}

// Events returns the bridge notification channel. Events are dropped, not
// blocked on, when the consumer falls behind.
func (b *AudioBridge) Events() <-chan Event {
	return b.events
}

// Status returns a point-in-time snapshot for monitoring.
func (b *AudioBridge) Status() StatusSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return StatusSnapshot{
		CallID:            b.opts.CallID,
		StreamSid:         b.streamSid,
		State:             string(b.state),
		ReconnectAttempts: b.attempts,
		LastHealthy:       b.lastHealthy,
		StartedAt:         b.startedAt,
	}
}

// Connect dials the realtime engine, performs the session handshake and
// starts the engine read pump and health probe.
func (b *AudioBridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.state == StateClosed {
		b.mu.Unlock()
		return ErrBridgeClosed
	}
	b.mu.Unlock()

	conn, err := b.connectEngine(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.state == StateClosed {
		b.mu.Unlock()
		conn.Close()
		return ErrBridgeClosed
	}
	b.engine = conn
	b.state = StateActive
	b.attempts = 0
	b.lastHealthy = time.Now()
	b.mu.Unlock()

	b.emit(Event{Type: EventConnected, CallID: b.opts.CallID, At: time.Now()})
	logger.Info("engine session established",
		zap.String("call_sid", b.opts.CallID),
		zap.String("model", b.opts.Model))

	go b.enginePump(conn)
	b.healthOnce.Do(func() { go b.healthLoop() })
	return nil
}

// connectEngine dials and performs the session.update / session.created
// handshake. Used for the initial connect and every reconnect.
func (b *AudioBridge) connectEngine(ctx context.Context) (*websocket.Conn, error) {
	url := b.opts.URL
	if b.opts.Model != "" {
		url = fmt.Sprintf("%s?model=%s", url, b.opts.Model)
	}
	header := http.Header{}
	if b.opts.APIKey != "" {
		header.Set("Authorization", "Bearer "+b.opts.APIKey)
	}
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: b.opts.ConnectTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &AuthenticationError{Status: resp.StatusCode}
		}
		return nil, fmt.Errorf("engine dial failed: %w", err)
	}

	update, err := b.sessionUpdate()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to build session update: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, update); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send session update: %w", err)
	}

	// Wait for the session acknowledgement before any audio flows.
	conn.SetReadDeadline(time.Now().Add(b.opts.ConnectTimeout))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return nil, &HandshakeTimeoutError{Timeout: b.opts.ConnectTimeout}
		}
		var msg engineMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "error" && msg.Error != nil {
			conn.Close()
			return nil, fmt.Errorf("engine rejected session: %s", msg.Error.Message)
		}
		if msg.Type == "session.created" || msg.Type == "session.updated" {
			break
		}
	}
	conn.SetReadDeadline(time.Time{})
	conn.SetPongHandler(func(string) error {
		b.touch()
		return nil
	})
	return conn, nil
}

func (b *AudioBridge) sessionUpdate() ([]byte, error) {
	type transcription struct {
		Model string `json:"model"`
	}
	type turnDetection struct {
		Type              string  `json:"type"`
		Threshold         float64 `json:"threshold"`
		PrefixPaddingMs   int     `json:"prefix_padding_ms"`
		SilenceDurationMs int     `json:"silence_duration_ms"`
	}
	type session struct {
		Modalities              []string         `json:"modalities"`
		Instructions            string           `json:"instructions,omitempty"`
		Voice                   string           `json:"voice,omitempty"`
		InputAudioFormat        string           `json:"input_audio_format"`
		OutputAudioFormat       string           `json:"output_audio_format"`
		InputAudioTranscription *transcription   `json:"input_audio_transcription,omitempty"`
		TurnDetection           *turnDetection   `json:"turn_detection,omitempty"`
		Tools                   []ToolDefinition `json:"tools,omitempty"`
		ToolChoice              string           `json:"tool_choice,omitempty"`
	}

	var tools []ToolDefinition
	if b.opts.Dispatcher != nil {
		tools = b.opts.Dispatcher.Definitions()
	}

	return sonic.Marshal(map[string]any{
		"type": "session.update",
		"session": session{
			Modalities:              []string{"text", "audio"},
			Instructions:            b.opts.Instructions,
			Voice:                   b.opts.Voice,
			InputAudioFormat:        "g711_ulaw",
			OutputAudioFormat:       "g711_ulaw",
			InputAudioTranscription: &transcription{Model: "whisper-1"},
			TurnDetection: &turnDetection{
				Type:              "server_vad",
				Threshold:         0.5,
				PrefixPaddingMs:   300,
				SilenceDurationMs: 500,
			},
			Tools:      tools,
			ToolChoice: "auto",
		},
	})
}

// AttachTelephonyPeer hands the telephony media-stream connection to the
// bridge and starts relaying. Only one peer may ever be attached.
func (b *AudioBridge) AttachTelephonyPeer(conn *websocket.Conn) error {
	b.mu.Lock()
	if b.state == StateClosed {
		b.mu.Unlock()
		return ErrBridgeClosed
	}
	if b.phone != nil {
		b.mu.Unlock()
		return &AlreadyAttachedError{CallID: b.opts.CallID}
	}
	b.phone = conn
	b.mu.Unlock()

	go b.phonePump(conn)
	return nil
}

// phonePump reads frames from the telephony peer. The caller hanging up, in
// any form, ends the call.
func (b *AudioBridge) phonePump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if b.currentState() == StateClosed {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.Close("telephony stream ended")
			} else {
				b.Close(fmt.Sprintf("telephony read error: %v", err))
			}
			return
		}

		var frame TelephonyFrame
		if err := sonic.Unmarshal(data, &frame); err != nil {
			logger.Debug("dropping malformed telephony frame",
				zap.String("call_sid", b.opts.CallID),
				zap.Error(err))
			continue
		}

		switch frame.Event {
		case "connected":
			// transport greeting, nothing to do
		case "start":
			sid := frame.StreamSid
			if frame.Start != nil && frame.Start.StreamSid != "" {
				sid = frame.Start.StreamSid
			}
			b.mu.Lock()
			b.streamSid = sid
			b.mu.Unlock()
			logger.Info("telephony stream started",
				zap.String("call_sid", b.opts.CallID),
				zap.String("stream_sid", sid))
		case "media":
			if msg, ok := translateInbound(&frame); ok {
				if err := b.sendEngine(msg); err != nil {
					logger.Debug("dropping inbound audio, engine unavailable",
						zap.String("call_sid", b.opts.CallID))
				}
			}
		case "stop":
			b.Close("caller hung up")
			return
		}
	}
}

// enginePump reads messages from the realtime engine.
func (b *AudioBridge) enginePump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			b.mu.Lock()
			stale := b.engine != conn
			closed := b.state == StateClosed
			b.mu.Unlock()
			if closed || stale {
				return
			}
			b.degrade(fmt.Sprintf("engine read error: %v", err))
			return
		}
		b.touch()

		var msg engineMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			logger.Debug("dropping malformed engine message",
				zap.String("call_sid", b.opts.CallID),
				zap.Error(err))
			continue
		}

		switch msg.Type {
		case "response.audio.delta":
			b.mu.Lock()
			sid := b.streamSid
			b.mu.Unlock()
			if frame, ok := translateOutbound(sid, msg.Delta); ok {
				if err := b.sendPhone(frame); err != nil {
					logger.Debug("dropping outbound audio, telephony peer unavailable",
						zap.String("call_sid", b.opts.CallID))
				}
			}
		case "response.audio_transcript.done":
			b.emit(Event{Type: EventTranscript, CallID: b.opts.CallID, Text: msg.Transcript, At: time.Now()})
		case "conversation.item.input_audio_transcription.completed":
			b.emit(Event{Type: EventTranscript, CallID: b.opts.CallID, Text: msg.Transcript, At: time.Now()})
		case "response.function_call_arguments.done":
			b.emit(Event{Type: EventToolCall, CallID: b.opts.CallID, Tool: msg.Name, At: time.Now()})
			if b.opts.Dispatcher != nil {
				go b.opts.Dispatcher.Dispatch(context.Background(), b, b.opts.CallID, msg.CallID, msg.Name, msg.Arguments)
			}
		case "error":
			detail := ""
			if msg.Error != nil {
				detail = msg.Error.Message
			}
			logger.Warn("engine reported error",
				zap.String("call_sid", b.opts.CallID),
				zap.String("detail", detail))
			b.emit(Event{Type: EventError, CallID: b.opts.CallID, Text: detail, At: time.Now()})
		}
	}
}

// healthLoop probes the engine connection at a fixed interval. The session is
// unhealthy when the socket is gone or nothing has arrived within three
// intervals.
func (b *AudioBridge) healthLoop() {
	ticker := time.NewTicker(b.opts.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.mu.Lock()
			st := b.state
			conn := b.engine
			last := b.lastHealthy
			b.mu.Unlock()

			if st == StateClosed {
				return
			}
			if st != StateActive {
				continue
			}

			healthy := conn != nil && time.Since(last) <= 3*b.opts.HealthInterval
			b.emit(Event{Type: EventHealthCheck, CallID: b.opts.CallID, Healthy: healthy, At: time.Now()})
			if !healthy {
				b.degrade("health check failed")
				continue
			}

			b.engineWriteMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			b.engineWriteMu.Unlock()
			if err != nil {
				b.degrade(fmt.Sprintf("ping failed: %v", err))
			}
		}
	}
}

// degrade moves the bridge to Degraded and schedules an engine reconnect.
func (b *AudioBridge) degrade(reason string) {
	b.mu.Lock()
	if b.state == StateClosed || b.state == StateDegraded {
		b.mu.Unlock()
		return
	}
	b.state = StateDegraded
	eng := b.engine
	b.engine = nil
	b.mu.Unlock()

	if eng != nil {
		eng.Close()
	}
	logger.Warn("engine connection lost",
		zap.String("call_sid", b.opts.CallID),
		zap.String("reason", reason))
	b.emit(Event{Type: EventDisconnected, CallID: b.opts.CallID, Text: reason, At: time.Now()})
	b.scheduleReconnect()
}

func (b *AudioBridge) scheduleReconnect() {
	b.mu.Lock()
	if b.state != StateDegraded {
		b.mu.Unlock()
		return
	}
	b.attempts++
	attempt := b.attempts
	b.mu.Unlock()

	if attempt > b.opts.MaxReconnects {
		b.Close("reconnect attempts exhausted")
		return
	}

	delay := time.Duration(attempt) * b.opts.ReconnectDelay
	logger.Info("scheduling engine reconnect",
		zap.String("call_sid", b.opts.CallID),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))

	b.mu.Lock()
	if b.state != StateDegraded {
		b.mu.Unlock()
		return
	}
	b.reconnectTimer = time.AfterFunc(delay, b.tryReconnect)
	b.mu.Unlock()
}

func (b *AudioBridge) tryReconnect() {
	if b.currentState() != StateDegraded {
		return
	}

	conn, err := b.connectEngine(context.Background())
	if err != nil {
		logger.Warn("engine reconnect failed",
			zap.String("call_sid", b.opts.CallID),
			zap.Error(err))
		b.scheduleReconnect()
		return
	}

	b.mu.Lock()
	if b.state != StateDegraded {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.engine = conn
	b.state = StateActive
	b.attempts = 0
	b.lastHealthy = time.Now()
	b.mu.Unlock()

	logger.Info("engine session re-established", zap.String("call_sid", b.opts.CallID))
	b.emit(Event{Type: EventConnected, CallID: b.opts.CallID, At: time.Now()})
	go b.enginePump(conn)
}

// Close tears the bridge down. It is idempotent and safe to call from any
// goroutine in any state.
func (b *AudioBridge) Close(reason string) {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.state = StateClosed
		eng := b.engine
		ph := b.phone
		b.engine = nil
		b.phone = nil
		timer := b.reconnectTimer
		b.mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		close(b.done)

		if eng != nil {
			b.engineWriteMu.Lock()
			eng.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			b.engineWriteMu.Unlock()
			eng.Close()
		}
		if ph != nil {
			b.phoneWriteMu.Lock()
			ph.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			b.phoneWriteMu.Unlock()
			ph.Close()
		}

		logger.Info("bridge closed",
			zap.String("call_sid", b.opts.CallID),
			zap.String("reason", reason))
		b.emit(Event{Type: EventDisconnected, CallID: b.opts.CallID, Text: reason, Final: true, At: time.Now()})

		if b.opts.OnClose != nil {
			b.opts.OnClose(b.opts.CallID, reason)
		}
	})
}

// SendEngineJSON marshals v and writes it to the engine socket. Implements
// EngineSender for the tool dispatcher.
func (b *AudioBridge) SendEngineJSON(v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	return b.sendEngine(data)
}

func (b *AudioBridge) sendEngine(data []byte) error {
	b.mu.Lock()
	conn := b.engine
	st := b.state
	b.mu.Unlock()
	if conn == nil || st != StateActive {
		return fmt.Errorf("engine not connected (state %s)", st)
	}
	b.engineWriteMu.Lock()
	defer b.engineWriteMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (b *AudioBridge) sendPhone(data []byte) error {
	b.mu.Lock()
	conn := b.phone
	b.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("telephony peer not attached")
	}
	b.phoneWriteMu.Lock()
	defer b.phoneWriteMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (b *AudioBridge) currentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *AudioBridge) touch() {
	b.mu.Lock()
	b.lastHealthy = time.Now()
	b.mu.Unlock()
}

// emit delivers an event without ever blocking the media path.
func (b *AudioBridge) emit(ev Event) {
	select {
	case b.events <- ev:
	default:
		logger.Debug("event dropped, consumer too slow",
			zap.String("call_sid", ev.CallID),
			zap.String("type", string(ev.Type)))
	}
}
