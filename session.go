package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bt-bridge/twilio-realtime/shared"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// CallerConn is the caller leg of a session. Both websocket libraries in use
// satisfy it directly.
type CallerConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// ModelConn is the model leg of a session.
type ModelConn interface {
	Initialize() error
	Send(ev *ClientEvent) error
	Read() ([]byte, error)
	Close() error
	Done() <-chan struct{}
}

var _ ModelConn = (*ModelClient)(nil)

type SessionState int32

const (
	SessionStateInit SessionState = iota
	SessionStateStreaming
	SessionStateClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionStateInit:
		return "INIT"
	case SessionStateStreaming:
		return "STREAMING"
	case SessionStateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// TranscriptHandler receives finished transcript lines as a secondary
// consumer. The relay runs identically without one.
type TranscriptHandler func(role, text string)

// Model event types worth logging when they pass through the outbound pump.
// A configuration concern, not control flow.
var logEventTypes = map[ServerEventType]struct{}{
	ServerEventTypeError:                         {},
	ServerEventTypeResponseContentDone:           {},
	ServerEventTypeRateLimitsUpdated:             {},
	ServerEventTypeResponseDone:                  {},
	ServerEventTypeInputAudioBufferCommitted:     {},
	ServerEventTypeInputAudioBufferSpeechStopped: {},
	ServerEventTypeInputAudioBufferSpeechStarted: {},
	ServerEventTypeSessionCreated:                {},
	ServerEventTypeSessionUpdated:                {},
}

// CallSession owns one caller connection and one model connection for the
// duration of one phone call. Two pumps run concurrently: inbound moves
// caller audio to the model, outbound moves synthesized audio back and
// handles barge-in. All cross-pump state lives here, single-writer per
// field: the inbound pump owns the caller clock, the outbound pump owns the
// utterance and mark state.
type CallSession struct {
	logger     shared.LoggerAdapter
	caller     CallerConn
	model      ModelConn
	marks      *MarkTracker
	interrupt  *InterruptionController
	transcript TranscriptHandler

	state atomic.Int32

	sidMu     sync.Mutex
	streamSid string

	droppedFrames atomic.Int64

	ctx          context.Context
	cancel       context.CancelCauseFunc
	teardownOnce sync.Once
	running      atomic.Bool
}

func NewCallSession(ctx context.Context, logger shared.LoggerAdapter, caller CallerConn, model ModelConn) (*CallSession, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if caller == nil {
		return nil, shared.ErrNoCallerConn
	}
	if model == nil {
		return nil, shared.ErrNoModelConn
	}
	ctx, cancel := context.WithCancelCause(ctx)
	return &CallSession{
		logger:    logger,
		caller:    caller,
		model:     model,
		marks:     NewMarkTracker(),
		interrupt: NewInterruptionController(),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// SetTranscriptHandler attaches the optional transcript consumer. Must be
// called before Run.
func (s *CallSession) SetTranscriptHandler(h TranscriptHandler) {
	s.transcript = h
}

// State reports the session lifecycle state.
func (s *CallSession) State() SessionState {
	return SessionState(s.state.Load())
}

// StreamSid returns the stream identifier bound at stream start, empty
// before then.
func (s *CallSession) StreamSid() string {
	s.sidMu.Lock()
	defer s.sidMu.Unlock()
	return s.streamSid
}

func (s *CallSession) setStreamSid(sid string) {
	s.sidMu.Lock()
	defer s.sidMu.Unlock()
	s.streamSid = sid
}

// Run drives both pumps until either leg disconnects, then tears the whole
// session down. It returns nil on a normal hangup and the fatal cause
// otherwise.
func (s *CallSession) Run() error {
	if !s.running.CompareAndSwap(false, true) {
		return shared.ErrSessionAlreadyRun
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.runInbound()
	}()
	go func() {
		defer wg.Done()
		s.runOutbound()
	}()
	wg.Wait()
	s.teardown(shared.ErrSessionClosed)
	cause := context.Cause(s.ctx)
	if errors.Is(cause, shared.ErrSessionClosed) || errors.Is(cause, context.Canceled) {
		return nil
	}
	return cause
}

// teardown transitions to CLOSED and closes both legs. Closing the sockets
// is what unblocks the sibling pump's read; no half-open sessions.
func (s *CallSession) teardown(cause error) {
	s.teardownOnce.Do(func() {
		s.state.Store(int32(SessionStateClosed))
		s.cancel(cause)
		_ = s.caller.Close()
		_ = s.model.Close()
		fields := []zap.Field{zap.String("streamSid", s.StreamSid())}
		if dropped := s.droppedFrames.Load(); dropped > 0 {
			fields = append(fields, zap.Int64("droppedFrames", dropped))
		}
		if pending := s.marks.Len(); pending > 0 {
			fields = append(fields, zap.Int("pendingMarks", pending))
		}
		if cause != nil && !errors.Is(cause, shared.ErrSessionClosed) {
			s.logger.Warn("session closed", append(fields, zap.String("cause", cause.Error()))...)
			return
		}
		s.logger.Info("session closed", fields...)
	})
}

// runInbound is the caller-to-model pump.
func (s *CallSession) runInbound() {
	for {
		_, raw, err := s.caller.ReadMessage()
		if err != nil {
			if s.State() != SessionStateClosed {
				s.teardown(fmt.Errorf("caller transport: %w", err))
			}
			return
		}
		frame, err := DecodeCallerFrame(raw)
		if err != nil {
			// Malformed messages are dropped; the stream goes on.
			s.logger.Warn("dropping malformed caller message", zap.Error(err))
			continue
		}
		switch frame.Event {
		case CallerEventTypeConnected:
			s.logger.Debug("caller connected")
		case CallerEventTypeStart:
			s.handleStart(frame.StreamSid)
		case CallerEventTypeMedia:
			s.handleMedia(frame)
		case CallerEventTypeMark:
			s.marks.Acknowledge()
		case CallerEventTypeStop:
			s.logger.Info("caller stopped stream", zap.String("streamSid", s.StreamSid()))
			s.teardown(shared.ErrSessionClosed)
			return
		}
	}
}

func (s *CallSession) handleStart(streamSid string) {
	if !s.state.CompareAndSwap(int32(SessionStateInit), int32(SessionStateStreaming)) {
		// Mid-session reconnects are not part of the platform contract.
		s.logger.Warn(
			"ignoring start event in unexpected state",
			zap.String("state", s.State().String()),
			zap.String("streamSid", streamSid),
		)
		return
	}
	s.setStreamSid(streamSid)
	s.logger.Info("incoming stream started", zap.String("streamSid", streamSid))
	if err := s.model.Initialize(); err != nil {
		s.teardown(fmt.Errorf("model handshake: %w", err))
	}
}

func (s *CallSession) handleMedia(frame *CallerFrame) {
	s.interrupt.ObserveCallerClock(frame.TimestampMs)
	if s.State() != SessionStateStreaming {
		return
	}
	select {
	case <-s.model.Done():
		// No consumer for this audio anymore; buffering it would only
		// leak, so the frame is discarded and counted.
		s.droppedFrames.Add(1)
		return
	default:
	}
	err := s.model.Send(&ClientEvent{
		Type:  ClientEventTypeInputAudioBufferAppend,
		Param: &ClientEventParamInputAudioBufferAppend{Audio: frame.Audio},
	})
	if err != nil {
		s.droppedFrames.Add(1)
	}
}

// runOutbound is the model-to-caller pump.
func (s *CallSession) runOutbound() {
	for {
		raw, err := s.model.Read()
		if err != nil {
			if s.State() != SessionStateClosed {
				s.teardown(fmt.Errorf("model transport: %w", err))
			}
			return
		}
		ev := new(ServerEvent)
		if err := ev.UnmarshalJSON(raw); err != nil {
			s.logger.Warn("dropping malformed model event", zap.Error(err))
			continue
		}
		if _, ok := logEventTypes[ev.Type]; ok {
			s.logger.Info("model event", zap.String("type", string(ev.Type)))
		}
		switch ev.Type {
		case ServerEventTypeResponseOutputAudioDelta:
			if !s.handleAudioDelta(ev.Param.(*ServerEventParamResponseOutputAudioDelta)) {
				return
			}
		case ServerEventTypeInputAudioBufferSpeechStarted:
			if !s.handleBargeIn() {
				return
			}
		case ServerEventTypeError:
			// The model service recovers its own state; soft for us.
			p := ev.Param.(*ServerEventParamError)
			s.logger.Error("model error event", nil,
				zap.String("code", p.Code),
				zap.String("message", p.Message),
			)
		case ServerEventTypeResponseOutputAudioTranscriptDone:
			if s.transcript != nil {
				s.transcript("assistant", ev.Param.(*ServerEventParamResponseOutputAudioTranscriptDone).Transcript)
			}
		case ServerEventTypeConversationItemInputAudioTranscriptionCompleted:
			if s.transcript != nil {
				s.transcript("caller", ev.Param.(*ServerEventParamConversationItemInputAudioTranscriptionCompleted).Transcript)
			}
		}
	}
}

// handleAudioDelta forwards one synthesized audio chunk to the caller,
// starts the utterance clock on the first delta of a new item and requests a
// playback checkpoint for the chunk. Reports false when the session died.
func (s *CallSession) handleAudioDelta(p *ServerEventParamResponseOutputAudioDelta) bool {
	audio, err := p.Audio()
	if err != nil {
		s.logger.Warn("dropping audio delta with bad payload", zap.Error(err))
		return true
	}
	s.interrupt.BeginUtterance(p.ItemId, s.interrupt.CallerClock())
	sid := s.StreamSid()
	data, err := EncodeMediaFrame(sid, audio)
	if err != nil {
		s.logger.Warn("encoding media frame", zap.Error(err))
		return true
	}
	if err := s.caller.WriteMessage(websocket.TextMessage, data); err != nil {
		s.teardown(fmt.Errorf("caller transport: %w", err))
		return false
	}
	s.marks.Enqueue(DefaultMarkName)
	mark, err := EncodeMarkFrame(sid, DefaultMarkName)
	if err != nil {
		s.logger.Warn("encoding mark frame", zap.Error(err))
		return true
	}
	if err := s.caller.WriteMessage(websocket.TextMessage, mark); err != nil {
		s.teardown(fmt.Errorf("caller transport: %w", err))
		return false
	}
	return true
}

// handleBargeIn truncates the in-flight assistant utterance when the caller
// starts talking over it: the model's transcript is cut to the audio
// actually played and the caller's playback buffer is flushed so the caller
// gets the floor without delay. Reports false when the session died.
func (s *CallSession) handleBargeIn() bool {
	cmd, ok := s.interrupt.OnBargeIn()
	if !ok {
		// The model is not speaking; nothing to truncate.
		return true
	}
	s.logger.Info(
		"caller barge-in, truncating utterance",
		zap.String("itemId", cmd.ItemId),
		zap.Int64("audioEndMs", cmd.AudioEndMs),
	)
	if err := s.model.Send(cmd.ClientEvent()); err != nil {
		s.logger.Warn("sending truncate command", zap.Error(err))
	}
	flush, err := EncodeClearFrame(s.StreamSid())
	if err != nil {
		s.logger.Warn("encoding clear frame", zap.Error(err))
		return true
	}
	if err := s.caller.WriteMessage(websocket.TextMessage, flush); err != nil {
		s.teardown(fmt.Errorf("caller transport: %w", err))
		return false
	}
	s.marks.Clear()
	return true
}
