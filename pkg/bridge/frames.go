package bridge

import (
	"github.com/bytedance/sonic"
)

// Telephony media-stream wire format (connected/start/media/stop envelope,
// audio as base64 mulaw in media.payload).

// TelephonyFrame is one message on the telephony media stream.
type TelephonyFrame struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid,omitempty"`
	Start     *StartFrame   `json:"start,omitempty"`
	Media     *MediaPayload `json:"media,omitempty"`
}

// StartFrame carries stream metadata on the "start" event.
type StartFrame struct {
	StreamSid        string            `json:"streamSid"`
	AccountSid       string            `json:"accountSid,omitempty"`
	CallSid          string            `json:"callSid"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// MediaPayload carries one audio chunk.
type MediaPayload struct {
	Track   string `json:"track,omitempty"`
	Payload string `json:"payload"`
}

// Realtime engine wire format.

type engineMessage struct {
	Type       string       `json:"type"`
	EventID    string       `json:"event_id,omitempty"`
	Delta      string       `json:"delta,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Name       string       `json:"name,omitempty"`
	CallID     string       `json:"call_id,omitempty"`
	Arguments  string       `json:"arguments,omitempty"`
	Error      *engineError `json:"error,omitempty"`
}

type engineError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// translateInbound converts a telephony media frame into an engine audio
// append message. Non-media frames and frames for the outbound track return
// ok=false and are handled elsewhere or dropped.
func translateInbound(frame *TelephonyFrame) ([]byte, bool) {
	if frame.Event != "media" || frame.Media == nil || frame.Media.Payload == "" {
		return nil, false
	}
	if frame.Media.Track != "" && frame.Media.Track != "inbound" {
		return nil, false
	}
	data, err := sonic.Marshal(audioAppend{
		Type:  "input_audio_buffer.append",
		Audio: frame.Media.Payload,
	})
	if err != nil {
		return nil, false
	}
	return data, true
}

// translateOutbound wraps an engine audio delta into a telephony media frame
// addressed to the active stream. The base64 payload passes through untouched.
func translateOutbound(streamSid, delta string) ([]byte, bool) {
	if streamSid == "" || delta == "" {
		return nil, false
	}
	data, err := sonic.Marshal(TelephonyFrame{
		Event:     "media",
		StreamSid: streamSid,
		Media:     &MediaPayload{Payload: delta},
	})
	if err != nil {
		return nil, false
	}
	return data, true
}
