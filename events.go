package relay

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

type EventType string

type ServerEventType EventType

type ClientEventType EventType

// Model-side server event types. Only a subset drives relay behavior; the
// rest exist so the allow-list logger can name them.
const (
	ServerEventTypeError                                            ServerEventType = "error"
	ServerEventTypeSessionCreated                                   ServerEventType = "session.created"
	ServerEventTypeSessionUpdated                                   ServerEventType = "session.updated"
	ServerEventTypeInputAudioBufferCommitted                        ServerEventType = "input_audio_buffer.committed"
	ServerEventTypeInputAudioBufferSpeechStarted                    ServerEventType = "input_audio_buffer.speech_started"
	ServerEventTypeInputAudioBufferSpeechStopped                    ServerEventType = "input_audio_buffer.speech_stopped"
	ServerEventTypeConversationItemInputAudioTranscriptionCompleted ServerEventType = "conversation.item.input_audio_transcription.completed"
	ServerEventTypeConversationItemTruncated                        ServerEventType = "conversation.item.truncated"
	ServerEventTypeResponseCreated                                  ServerEventType = "response.created"
	ServerEventTypeResponseDone                                     ServerEventType = "response.done"
	ServerEventTypeResponseContentDone                              ServerEventType = "response.content.done"
	ServerEventTypeResponseOutputAudioDelta                         ServerEventType = "response.output_audio.delta"
	ServerEventTypeResponseOutputAudioDone                          ServerEventType = "response.output_audio.done"
	ServerEventTypeResponseOutputAudioTranscriptDelta               ServerEventType = "response.output_audio_transcript.delta"
	ServerEventTypeResponseOutputAudioTranscriptDone                ServerEventType = "response.output_audio_transcript.done"
	ServerEventTypeRateLimitsUpdated                                ServerEventType = "rate_limits.updated"
)

// Model-side client event types, the commands the relay sends.
const (
	ClientEventTypeSessionUpdate            ClientEventType = "session.update"
	ClientEventTypeInputAudioBufferAppend   ClientEventType = "input_audio_buffer.append"
	ClientEventTypeConversationItemCreate   ClientEventType = "conversation.item.create"
	ClientEventTypeConversationItemTruncate ClientEventType = "conversation.item.truncate"
	ClientEventTypeResponseCreate           ClientEventType = "response.create"
)

type EventParam interface {
	New(jsonMap map[string]any) error
	Json() map[string]any
}

// ServerEvent is one decoded model event. Param is nil for event types the
// relay does not act on.
type ServerEvent struct {
	EventId string
	Type    ServerEventType
	Param   EventParam
}

func (e *ServerEvent) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["event_id"].(string); ok {
		e.EventId = v
		delete(raw, "event_id")
	}
	if v, ok := raw["type"].(string); ok {
		e.Type = ServerEventType(v)
		delete(raw, "type")
	} else {
		return errors.New("missing type")
	}
	switch e.Type {
	case ServerEventTypeError:
		e.Param = new(ServerEventParamError)
	case ServerEventTypeInputAudioBufferSpeechStarted:
		e.Param = new(ServerEventParamInputAudioBufferSpeechStarted)
	case ServerEventTypeResponseOutputAudioDelta:
		e.Param = new(ServerEventParamResponseOutputAudioDelta)
	case ServerEventTypeResponseOutputAudioTranscriptDelta:
		e.Param = new(ServerEventParamResponseOutputAudioTranscriptDelta)
	case ServerEventTypeResponseOutputAudioTranscriptDone:
		e.Param = new(ServerEventParamResponseOutputAudioTranscriptDone)
	case ServerEventTypeConversationItemInputAudioTranscriptionCompleted:
		e.Param = new(ServerEventParamConversationItemInputAudioTranscriptionCompleted)
	default:
		e.Param = nil
		return nil
	}
	if err := e.Param.New(raw); err != nil {
		return fmt.Errorf("decoding %s: %w", e.Type, err)
	}
	return nil
}

// error
type ServerEventParamError struct {
	Type    string
	Code    string
	Message string
}

func (p *ServerEventParamError) New(m map[string]any) error {
	errObj, ok := m["error"].(map[string]any)
	if !ok {
		return errors.New("missing error")
	}
	if v, ok := errObj["type"].(string); ok {
		p.Type = v
	}
	if v, ok := errObj["code"].(string); ok {
		p.Code = v
	}
	if v, ok := errObj["message"].(string); ok {
		p.Message = v
	} else {
		return errors.New("missing error.message")
	}
	return nil
}

func (p *ServerEventParamError) Json() map[string]any {
	return map[string]any{
		"error": map[string]any{
			"type":    p.Type,
			"code":    p.Code,
			"message": p.Message,
		},
	}
}

// input_audio_buffer.speech_started
type ServerEventParamInputAudioBufferSpeechStarted struct {
	AudioStartMs int
	ItemId       string
}

func (p *ServerEventParamInputAudioBufferSpeechStarted) New(m map[string]any) error {
	if v, ok := asInt(m["audio_start_ms"]); ok {
		p.AudioStartMs = v
	}
	if v, ok := m["item_id"].(string); ok {
		p.ItemId = v
	}
	return nil
}

func (p *ServerEventParamInputAudioBufferSpeechStarted) Json() map[string]any {
	return map[string]any{
		"audio_start_ms": p.AudioStartMs,
		"item_id":        p.ItemId,
	}
}

// response.output_audio.delta
type ServerEventParamResponseOutputAudioDelta struct {
	ResponseId   string
	ItemId       string
	OutputIndex  int
	ContentIndex int
	Delta        string
}

func (p *ServerEventParamResponseOutputAudioDelta) New(m map[string]any) error {
	if v, ok := m["response_id"].(string); ok {
		p.ResponseId = v
	}
	if v, ok := m["item_id"].(string); ok {
		p.ItemId = v
	} else {
		return errors.New("missing item_id")
	}
	if v, ok := asInt(m["output_index"]); ok {
		p.OutputIndex = v
	}
	if v, ok := asInt(m["content_index"]); ok {
		p.ContentIndex = v
	}
	if v, ok := m["delta"].(string); ok {
		p.Delta = v
	} else {
		return errors.New("missing delta")
	}
	return nil
}

func (p *ServerEventParamResponseOutputAudioDelta) Json() map[string]any {
	return map[string]any{
		"response_id":   p.ResponseId,
		"item_id":       p.ItemId,
		"output_index":  p.OutputIndex,
		"content_index": p.ContentIndex,
		"delta":         p.Delta,
	}
}

// Audio returns the decoded delta payload.
func (p *ServerEventParamResponseOutputAudioDelta) Audio() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.Delta)
}

// response.output_audio_transcript.delta
type ServerEventParamResponseOutputAudioTranscriptDelta struct {
	ItemId string
	Delta  string
}

func (p *ServerEventParamResponseOutputAudioTranscriptDelta) New(m map[string]any) error {
	if v, ok := m["item_id"].(string); ok {
		p.ItemId = v
	}
	if v, ok := m["delta"].(string); ok {
		p.Delta = v
	} else {
		return errors.New("missing delta")
	}
	return nil
}

func (p *ServerEventParamResponseOutputAudioTranscriptDelta) Json() map[string]any {
	return map[string]any{
		"item_id": p.ItemId,
		"delta":   p.Delta,
	}
}

// response.output_audio_transcript.done
type ServerEventParamResponseOutputAudioTranscriptDone struct {
	ItemId     string
	Transcript string
}

func (p *ServerEventParamResponseOutputAudioTranscriptDone) New(m map[string]any) error {
	if v, ok := m["item_id"].(string); ok {
		p.ItemId = v
	}
	if v, ok := m["transcript"].(string); ok {
		p.Transcript = v
	} else {
		return errors.New("missing transcript")
	}
	return nil
}

func (p *ServerEventParamResponseOutputAudioTranscriptDone) Json() map[string]any {
	return map[string]any{
		"item_id":    p.ItemId,
		"transcript": p.Transcript,
	}
}

// conversation.item.input_audio_transcription.completed
type ServerEventParamConversationItemInputAudioTranscriptionCompleted struct {
	ItemId     string
	Transcript string
}

func (p *ServerEventParamConversationItemInputAudioTranscriptionCompleted) New(m map[string]any) error {
	if v, ok := m["item_id"].(string); ok {
		p.ItemId = v
	}
	if v, ok := m["transcript"].(string); ok {
		p.Transcript = v
	} else {
		return errors.New("missing transcript")
	}
	return nil
}

func (p *ServerEventParamConversationItemInputAudioTranscriptionCompleted) Json() map[string]any {
	return map[string]any{
		"item_id":    p.ItemId,
		"transcript": p.Transcript,
	}
}

// ClientEvent is one command for the model connection.
type ClientEvent struct {
	Type  ClientEventType
	Param EventParam
}

func (e *ClientEvent) MarshalJSON() ([]byte, error) {
	if e.Type == "" {
		return nil, errors.New("Type is empty")
	}
	resp := map[string]any{}
	if e.Param != nil {
		for k, v := range e.Param.Json() {
			resp[k] = v
		}
	}
	resp["type"] = e.Type
	return sonic.Marshal(resp)
}

// session.update
type ClientEventParamSessionUpdate struct {
	Session *SessionConfig
}

func (p *ClientEventParamSessionUpdate) New(m map[string]any) error {
	return errors.New("session.update is client-only")
}

func (p *ClientEventParamSessionUpdate) Json() map[string]any {
	return map[string]any{
		"session": p.Session.Json(),
	}
}

// input_audio_buffer.append
type ClientEventParamInputAudioBufferAppend struct {
	Audio []byte
}

func (p *ClientEventParamInputAudioBufferAppend) New(m map[string]any) error {
	v, ok := m["audio"].(string)
	if !ok {
		return errors.New("missing audio")
	}
	audio, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return fmt.Errorf("decoding audio: %w", err)
	}
	p.Audio = audio
	return nil
}

func (p *ClientEventParamInputAudioBufferAppend) Json() map[string]any {
	return map[string]any{
		"audio": base64.StdEncoding.EncodeToString(p.Audio),
	}
}

// conversation.item.create (text message item)
type ClientEventParamConversationItemCreate struct {
	Role string
	Text string
}

func (p *ClientEventParamConversationItemCreate) New(m map[string]any) error {
	return errors.New("conversation.item.create is client-only")
}

func (p *ClientEventParamConversationItemCreate) Json() map[string]any {
	return map[string]any{
		"item": map[string]any{
			"type": "message",
			"role": p.Role,
			"content": []map[string]any{
				{
					"type": "input_text",
					"text": p.Text,
				},
			},
		},
	}
}

// conversation.item.truncate
type ClientEventParamConversationItemTruncate struct {
	ItemId       string
	ContentIndex int
	AudioEndMs   int64
}

func (p *ClientEventParamConversationItemTruncate) New(m map[string]any) error {
	if v, ok := m["item_id"].(string); ok {
		p.ItemId = v
	} else {
		return errors.New("missing item_id")
	}
	if v, ok := asInt(m["content_index"]); ok {
		p.ContentIndex = v
	}
	if v, ok := asInt(m["audio_end_ms"]); ok {
		p.AudioEndMs = int64(v)
	} else {
		return errors.New("missing audio_end_ms")
	}
	return nil
}

func (p *ClientEventParamConversationItemTruncate) Json() map[string]any {
	return map[string]any{
		"item_id":       p.ItemId,
		"content_index": p.ContentIndex,
		"audio_end_ms":  p.AudioEndMs,
	}
}

// response.create
type ClientEventParamResponseCreate struct{}

func (p *ClientEventParamResponseCreate) New(m map[string]any) error {
	return errors.New("response.create is client-only")
}

func (p *ClientEventParamResponseCreate) Json() map[string]any {
	return map[string]any{}
}

// SessionConfig is the one-time model session handshake: voice, audio codec,
// turn-detection mode and system instructions.
type SessionConfig struct {
	Model         string
	Voice         string
	Instructions  string
	InputFormat   string
	OutputFormat  string
	TurnDetection string
}

// DefaultSessionConfig matches the telephony leg: G.711 u-law both ways and
// server-side voice activity detection.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		Model:         "gpt-realtime",
		Voice:         "verse",
		InputFormat:   "audio/pcmu",
		OutputFormat:  "audio/pcmu",
		TurnDetection: "server_vad",
	}
}

func (c *SessionConfig) Json() map[string]any {
	return map[string]any{
		"type":              "realtime",
		"model":             c.Model,
		"output_modalities": []string{"audio"},
		"audio": map[string]any{
			"input": map[string]any{
				"format":         map[string]any{"type": c.InputFormat},
				"turn_detection": map[string]any{"type": c.TurnDetection},
			},
			"output": map[string]any{
				"format": map[string]any{"type": c.OutputFormat},
				"voice":  c.Voice,
			},
		},
		"instructions": c.Instructions,
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}
