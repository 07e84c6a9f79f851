package rooms

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/carlmjohnson/requests"
	"go.uber.org/zap"

	"github.com/LingByte/LingBridge/pkg/logger"
)

// Service manages media rooms on the external room server. Every bridged
// call gets its own room so downstream consumers (recording, supervision)
// can join the audio.
type Service interface {
	CreateRoom(ctx context.Context, name string, meta Metadata) (*Room, error)
	DeleteRoom(ctx context.Context, name string) error
	ListParticipants(ctx context.Context, name string) ([]Participant, error)
}

// Metadata is attached to a room at creation time.
type Metadata struct {
	CallSid  string `json:"callSid"`
	Caller   string `json:"caller"`
	Callee   string `json:"callee"`
	Provider string `json:"provider"`
}

// Room describes a room on the server.
type Room struct {
	Name         string `json:"name"`
	EmptyTimeout int    `json:"emptyTimeout"`
	Metadata     string `json:"metadata,omitempty"`
	CreatedAt    int64  `json:"createdAt,omitempty"`
}

// Participant is one connected member of a room.
type Participant struct {
	Identity string `json:"identity"`
	State    string `json:"state"`
	JoinedAt int64  `json:"joinedAt,omitempty"`
}

// Client implements Service over the room server's HTTP API.
type Client struct {
	baseURL      string
	apiKey       string
	apiSecret    string
	emptyTimeout int
	timeout      time.Duration
}

// NewClient creates a room service client. emptyTimeout is the number of
// seconds an empty room survives before the server reclaims it.
func NewClient(baseURL, apiKey, apiSecret string, emptyTimeout int) *Client {
	if emptyTimeout <= 0 {
		emptyTimeout = 300
	}
	return &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		apiSecret:    apiSecret,
		emptyTimeout: emptyTimeout,
		timeout:      10 * time.Second,
	}
}

func (c *Client) CreateRoom(ctx context.Context, name string, meta Metadata) (*Room, error) {
	metaJSON, err := sonic.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode room metadata: %w", err)
	}

	body := map[string]any{
		"name":         name,
		"emptyTimeout": c.emptyTimeout,
		"metadata":     string(metaJSON),
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var room Room
	err = requests.
		URL(c.baseURL).
		Path("/rooms").
		BasicAuth(c.apiKey, c.apiSecret).
		BodyJSON(body).
		ToJSON(&room).
		Fetch(reqCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to create room %q: %w", name, err)
	}

	logger.Info("room created",
		zap.String("room", room.Name),
		zap.String("call_sid", meta.CallSid))
	return &room, nil
}

func (c *Client) DeleteRoom(ctx context.Context, name string) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := requests.
		URL(c.baseURL).
		Pathf("/rooms/%s", name).
		BasicAuth(c.apiKey, c.apiSecret).
		Method(http.MethodDelete).
		Fetch(reqCtx)
	if err != nil {
		return fmt.Errorf("failed to delete room %q: %w", name, err)
	}

	logger.Info("room deleted", zap.String("room", name))
	return nil
}

func (c *Client) ListParticipants(ctx context.Context, name string) ([]Participant, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var participants []Participant
	err := requests.
		URL(c.baseURL).
		Pathf("/rooms/%s/participants", name).
		BasicAuth(c.apiKey, c.apiSecret).
		ToJSON(&participants).
		Fetch(reqCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants of room %q: %w", name, err)
	}
	return participants, nil
}
