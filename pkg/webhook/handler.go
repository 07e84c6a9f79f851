package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/LingByte/LingBridge/internal/models"
	"github.com/LingByte/LingBridge/pkg/bridge"
	"github.com/LingByte/LingBridge/pkg/config"
	"github.com/LingByte/LingBridge/pkg/constants"
	"github.com/LingByte/LingBridge/pkg/fallback"
	"github.com/LingByte/LingBridge/pkg/logger"
	"github.com/LingByte/LingBridge/pkg/rooms"
	"github.com/LingByte/LingBridge/pkg/tools"
	"github.com/LingByte/LingBridge/pkg/trunk"
	"github.com/LingByte/LingBridge/pkg/utils"
)

// Handler serves the telephony provider webhooks, the media-stream socket
// and the admin API.
type Handler struct {
	db       *gorm.DB
	cfg      *config.Config
	router   bridge.Router
	registry bridge.Registry
	loop     *fallback.Loop
	rooms    rooms.Service
	trunks   *trunk.Manager
	weather  *tools.WeatherService
	upgrader websocket.Upgrader
}

// NewHandler wires the webhook surface. rooms and weather may be nil when the
// respective services are not configured.
func NewHandler(db *gorm.DB, cfg *config.Config, registry bridge.Registry, loop *fallback.Loop,
	roomSvc rooms.Service, trunks *trunk.Manager, weather *tools.WeatherService) *Handler {
	return &Handler{
		db:  db,
		cfg: cfg,
		router: bridge.Router{
			Enabled:    cfg.Realtime.Enabled,
			Percentage: cfg.Realtime.Percentage,
		},
		registry: registry,
		loop:     loop,
		rooms:    roomSvc,
		trunks:   trunks,
		weather:  weather,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// RegisterRoutes mounts all routes on the engine.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.handleHealth)
	r.POST("/webhook/voice", h.handleVoice)
	r.POST("/webhook/gather", h.handleGather)
	r.POST("/webhook/status", h.handleStatus)
	r.GET("/media-stream", h.handleMediaStream)
	r.GET("/realtime/status", h.handleRealtimeStatus)

	admin := r.Group(h.cfg.Server.AdminPrefix)
	admin.POST("/trunks", h.handleCreateTrunk)
	admin.GET("/trunks", h.handleListTrunks)
	admin.DELETE("/trunks/:id", h.handleDeleteTrunk)
	admin.POST("/dispatch-rules", h.handleCreateRule)
	admin.GET("/dispatch-rules", h.handleListRules)
	admin.DELETE("/dispatch-rules/:id", h.handleDeleteRule)
}

// handleVoice answers the initial call webhook: route the call to realtime or
// fallback and reply with the matching TwiML.
func (h *Handler) handleVoice(c *gin.Context) {
	callSid := c.PostForm("CallSid")
	from := c.PostForm("From")
	to := c.PostForm("To")

	if callSid == "" {
		c.String(http.StatusBadRequest, "CallSid is required")
		return
	}

	logger.Info("voice webhook received",
		zap.String("call_sid", callSid),
		zap.String("from", from),
		zap.String("to", to))

	var rule *models.DispatchRule
	if h.trunks != nil {
		rule, _ = h.trunks.Resolve(to)
	}

	if h.router.UseRealtime(callSid) && h.startRealtime(callSid, from, to, rule) {
		h.sendTwiML(c, h.streamTwiML(callSid))
		return
	}

	h.recordCall(callSid, from, to, models.CallPathFallback, "")
	h.sendTwiML(c, h.gatherTwiML(h.greeting()))
}

// startRealtime builds, registers and connects a bridge for the call.
// Returns false when anything fails so the caller degrades to fallback.
func (h *Handler) startRealtime(callSid, from, to string, rule *models.DispatchRule) bool {
	roomName := utils.NewRoomName()

	instructions := h.cfg.Realtime.Instructions
	if rule != nil && rule.AgentName != "" {
		instructions = fmt.Sprintf("%s\nYou are acting as agent %q.", instructions, rule.AgentName)
	}

	dispatcher := bridge.NewDispatcher(h.cfg.Realtime.ToolTimeout, h.cfg.Realtime.Language)
	if h.weather != nil {
		if err := dispatcher.RegisterTool(h.weather.Tool()); err != nil {
			logger.Warn("failed to register weather tool", zap.Error(err))
		}
	}

	b := bridge.NewAudioBridge(bridge.Options{
		CallID:         callSid,
		URL:            h.cfg.Realtime.URL,
		APIKey:         h.cfg.Realtime.APIKey,
		Model:          h.cfg.Realtime.Model,
		Voice:          h.cfg.Realtime.Voice,
		Language:       h.cfg.Realtime.Language,
		Instructions:   instructions,
		ConnectTimeout: h.cfg.Realtime.ConnectTimeout,
		HealthInterval: h.cfg.Realtime.HealthInterval,
		ReconnectDelay: h.cfg.Realtime.ReconnectDelay,
		MaxReconnects:  h.cfg.Realtime.MaxReconnects,
		Dispatcher:     dispatcher,
		OnClose:        h.onBridgeClose(roomName),
	})

	if err := h.registry.Register(callSid, b); err != nil {
		var dup *bridge.DuplicateSessionError
		if errors.As(err, &dup) {
			logger.Warn("duplicate session for call", zap.String("call_sid", callSid))
		} else {
			logger.Error("failed to register session", zap.String("call_sid", callSid), zap.Error(err))
		}
		return false
	}

	if err := b.Connect(context.Background()); err != nil {
		logger.Error("realtime connect failed, degrading to fallback",
			zap.String("call_sid", callSid),
			zap.Error(err))
		h.registry.Remove(callSid)
		b.Close("connect failed")
		return false
	}

	if h.rooms != nil {
		if _, err := h.rooms.CreateRoom(context.Background(), roomName, rooms.Metadata{
			CallSid:  callSid,
			Caller:   from,
			Callee:   to,
			Provider: "twilio",
		}); err != nil {
			// The call works without a room, keep going.
			logger.Warn("room creation failed", zap.String("room", roomName), zap.Error(err))
		}
	}

	h.recordCall(callSid, from, to, models.CallPathRealtime, roomName)
	go h.drainEvents(b)
	return true
}

// onBridgeClose deregisters the session and finishes the bookkeeping when a
// bridge reaches its terminal state.
func (h *Handler) onBridgeClose(roomName string) func(callID, reason string) {
	return func(callID, reason string) {
		h.registry.Remove(callID)

		status := models.CallStatusCompleted
		switch {
		case reason == "caller hung up", reason == "telephony stream ended":
		case strings.HasPrefix(reason, "telephony status completed"):
		default:
			status = models.CallStatusFailed
		}
		if h.db != nil {
			if err := models.FinishCallRecord(h.db, callID, status, reason); err != nil {
				logger.Warn("failed to finish call record", zap.String("call_sid", callID), zap.Error(err))
			}
		}
		if h.rooms != nil && roomName != "" {
			if err := h.rooms.DeleteRoom(context.Background(), roomName); err != nil {
				logger.Warn("room deletion failed", zap.String("room", roomName), zap.Error(err))
			}
		}
	}
}

// drainEvents logs bridge lifecycle events for observability.
func (h *Handler) drainEvents(b *bridge.AudioBridge) {
	for ev := range b.Events() {
		switch ev.Type {
		case bridge.EventTranscript:
			logger.Info("transcript", zap.String("call_sid", ev.CallID), zap.String("text", ev.Text))
		case bridge.EventToolCall:
			logger.Info("tool call requested", zap.String("call_sid", ev.CallID), zap.String("tool", ev.Tool))
		case bridge.EventError:
			logger.Warn("bridge error", zap.String("call_sid", ev.CallID), zap.String("detail", ev.Text))
		case bridge.EventDisconnected:
			if ev.Final {
				return
			}
		}
	}
}

// handleGather runs one fallback conversation turn.
func (h *Handler) handleGather(c *gin.Context) {
	callSid := c.PostForm("CallSid")
	utterance := c.PostForm("SpeechResult")
	if utterance == "" {
		utterance = c.PostForm("Digits")
	}

	reply, done := h.loop.HandleTurn(c.Request.Context(), callSid, utterance)

	if h.db != nil && callSid != "" {
		if err := models.IncrementCallTurns(h.db, callSid); err != nil {
			logger.Debug("failed to bump turn counter", zap.String("call_sid", callSid), zap.Error(err))
		}
	}

	if done {
		if h.db != nil && callSid != "" {
			if err := models.FinishCallRecord(h.db, callSid, models.CallStatusCompleted, "conversation ended"); err != nil {
				logger.Warn("failed to finish call record", zap.String("call_sid", callSid), zap.Error(err))
			}
		}
		h.sendTwiML(c, &TwiMLResponse{
			Say:    []Say{h.say(reply)},
			Pause:  &Pause{Length: 1},
			Hangup: &Hangup{},
		})
		return
	}

	h.sendTwiML(c, h.gatherTwiML(reply))
}

// handleStatus processes call status callbacks and tears sessions down.
func (h *Handler) handleStatus(c *gin.Context) {
	callSid := c.PostForm("CallSid")
	callStatus := c.PostForm("CallStatus")

	logger.Info("status webhook received",
		zap.String("call_sid", callSid),
		zap.String("status", callStatus))

	switch callStatus {
	case "completed", "failed", "busy", "no-answer", "canceled":
		if b, ok := h.registry.Lookup(callSid); ok {
			b.Close("telephony status " + callStatus)
		}
		h.loop.EndSession(callSid)
		if h.db != nil && callSid != "" {
			status := models.CallStatusCompleted
			if callStatus != "completed" {
				status = models.CallStatusFailed
			}
			if err := models.FinishCallRecord(h.db, callSid, status, "status "+callStatus); err != nil {
				logger.Debug("failed to finish call record", zap.String("call_sid", callSid), zap.Error(err))
			}
		}
	}
	c.Status(http.StatusOK)
}

// handleMediaStream upgrades the media-stream socket and hands it to the
// call's bridge.
func (h *Handler) handleMediaStream(c *gin.Context) {
	callSid := c.Query("callSid")
	if callSid == "" {
		c.String(http.StatusBadRequest, "callSid is required")
		return
	}

	b, ok := h.registry.Lookup(callSid)
	if !ok {
		logger.Warn("media stream for unknown call", zap.String("call_sid", callSid))
		c.String(http.StatusNotFound, "no session for call")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("media stream upgrade failed", zap.String("call_sid", callSid), zap.Error(err))
		return
	}

	if err := b.AttachTelephonyPeer(conn); err != nil {
		logger.Error("failed to attach telephony peer",
			zap.String("call_sid", callSid),
			zap.Error(err))
		conn.Close()
		return
	}

	logger.Info("media stream attached", zap.String("call_sid", callSid))
}

func (h *Handler) handleHealth(c *gin.Context) {
	siteName := h.cfg.Server.Name
	if h.db != nil {
		if name, err := utils.GetConfigValue(h.db, constants.KEY_SITE_NAME); err == nil && name != "" {
			siteName = name
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"name":             siteName,
		"activeSessions":   h.registry.Len(),
		"fallbackSessions": h.loop.ActiveSessions(),
		"realtimeEnabled":  h.router.Enabled,
		"rolloutPercent":   h.router.Percentage,
	})
}

func (h *Handler) handleRealtimeStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sessions": h.registry.Snapshot(),
		"count":    h.registry.Len(),
	})
}

// Admin API

func (h *Handler) handleCreateTrunk(c *gin.Context) {
	var t models.SIPTrunk
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.trunks.CreateTrunk(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) handleListTrunks(c *gin.Context) {
	trunks, err := h.trunks.ListTrunks()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, trunks)
}

func (h *Handler) handleDeleteTrunk(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trunk id"})
		return
	}
	if err := h.trunks.DeleteTrunk(uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) handleCreateRule(c *gin.Context) {
	var r models.DispatchRule
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.trunks.CreateRule(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *Handler) handleListRules(c *gin.Context) {
	rules, err := h.trunks.ListRules()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (h *Handler) handleDeleteRule(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
		return
	}
	if err := h.trunks.DeleteRule(uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// TwiML helpers

func (h *Handler) sendTwiML(c *gin.Context, response *TwiMLResponse) {
	data, err := RenderTwiML(response)
	if err != nil {
		logger.Error("failed to render TwiML", zap.Error(err))
		c.String(http.StatusInternalServerError, "Internal Server Error")
		return
	}
	c.Data(http.StatusOK, "application/xml", data)
}

func (h *Handler) streamTwiML(callSid string) *TwiMLResponse {
	return &TwiMLResponse{
		Connect: &Connect{
			Stream: &Stream{
				URL: fmt.Sprintf("%s/media-stream?callSid=%s", h.wsBaseURL(), callSid),
				Parameters: []StreamParameter{
					{Name: "callSid", Value: callSid},
				},
			},
		},
	}
}

func (h *Handler) gatherTwiML(text string) *TwiMLResponse {
	return &TwiMLResponse{
		Gather: &Gather{
			Input:    "speech",
			Action:   h.cfg.Server.URL + "/webhook/gather",
			Method:   "POST",
			Timeout:  10,
			Language: h.sayLanguage(),
			Say:      ptrSay(h.say(text)),
		},
	}
}

func (h *Handler) say(text string) Say {
	return Say{Voice: "alice", Language: h.sayLanguage(), Text: text}
}

func ptrSay(s Say) *Say {
	return &s
}

func (h *Handler) sayLanguage() string {
	if h.cfg.Realtime.Language == "de" {
		return "de-DE"
	}
	return "en-US"
}

func (h *Handler) greeting() string {
	if h.cfg.Realtime.Language == "de" {
		return "Guten Tag! Wie kann ich Ihnen helfen?"
	}
	return "Hello! How can I help you today?"
}

// wsBaseURL converts the public base URL into its websocket form.
func (h *Handler) wsBaseURL() string {
	url := h.cfg.Server.URL
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	default:
		return url
	}
}

func (h *Handler) recordCall(callSid, from, to string, path models.CallPath, roomName string) {
	if h.db == nil || callSid == "" {
		return
	}
	err := models.CreateCallRecord(h.db, &models.CallRecord{
		CallSid:  callSid,
		From:     from,
		To:       to,
		Path:     path,
		RoomName: roomName,
	})
	if err != nil {
		logger.Warn("failed to create call record", zap.String("call_sid", callSid), zap.Error(err))
	}
}
