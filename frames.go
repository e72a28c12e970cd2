package relay

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
)

type CallerEventType EventType

// Caller-side events on the media stream.
const (
	CallerEventTypeConnected CallerEventType = "connected"
	CallerEventTypeStart     CallerEventType = "start"
	CallerEventTypeMedia     CallerEventType = "media"
	CallerEventTypeMark      CallerEventType = "mark"
	CallerEventTypeStop      CallerEventType = "stop"
)

// CallerFrame is one decoded inbound message from the telephony platform.
// StreamSid is set for start frames, TimestampMs and Audio for media frames.
type CallerFrame struct {
	Event       CallerEventType
	StreamSid   string
	TimestampMs int64
	Audio       []byte
}

// DecodeCallerFrame parses one raw caller message. A failure here is
// per-message: the caller of this function drops the frame and carries on.
func DecodeCallerFrame(data []byte) (*CallerFrame, error) {
	var raw map[string]any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	f := new(CallerFrame)
	if v, ok := raw["event"].(string); ok {
		f.Event = CallerEventType(v)
	} else {
		return nil, errors.New("missing event")
	}
	switch f.Event {
	case CallerEventTypeStart:
		start, ok := raw["start"].(map[string]any)
		if !ok {
			return nil, errors.New("missing start")
		}
		if v, ok := start["streamSid"].(string); ok {
			f.StreamSid = v
		} else {
			return nil, errors.New("missing start.streamSid")
		}
	case CallerEventTypeMedia:
		media, ok := raw["media"].(map[string]any)
		if !ok {
			return nil, errors.New("missing media")
		}
		ts, ok := asInt64(media["timestamp"])
		if !ok {
			return nil, errors.New("missing media.timestamp")
		}
		f.TimestampMs = ts
		payload, ok := media["payload"].(string)
		if !ok {
			return nil, errors.New("missing media.payload")
		}
		audio, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decoding media.payload: %w", err)
		}
		f.Audio = audio
	case CallerEventTypeConnected, CallerEventTypeMark, CallerEventTypeStop:
		// No payload the relay cares about.
	default:
		return nil, fmt.Errorf("unknown caller event %q", f.Event)
	}
	return f, nil
}

type mediaFrame struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid"`
	Media     mediaPayload `json:"media"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type markFrame struct {
	Event     string      `json:"event"`
	StreamSid string      `json:"streamSid"`
	Mark      markPayload `json:"mark"`
}

type markPayload struct {
	Name string `json:"name"`
}

type clearFrame struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
}

// EncodeMediaFrame builds one outbound playback frame for the caller.
func EncodeMediaFrame(streamSid string, audio []byte) ([]byte, error) {
	return sonic.Marshal(&mediaFrame{
		Event:     string(CallerEventTypeMedia),
		StreamSid: streamSid,
		Media:     mediaPayload{Payload: base64.StdEncoding.EncodeToString(audio)},
	})
}

// EncodeMarkFrame builds a playback checkpoint request so the platform can
// acknowledge once the preceding frame has been rendered to the line.
func EncodeMarkFrame(streamSid, name string) ([]byte, error) {
	return sonic.Marshal(&markFrame{
		Event:     string(CallerEventTypeMark),
		StreamSid: streamSid,
		Mark:      markPayload{Name: name},
	})
}

// EncodeClearFrame builds the command that discards the caller's buffered,
// not-yet-played assistant audio.
func EncodeClearFrame(streamSid string) ([]byte, error) {
	return sonic.Marshal(&clearFrame{
		Event:     "clear",
		StreamSid: streamSid,
	})
}

// The platform has been observed sending media timestamps both as JSON
// numbers and as strings.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}
