// Package server exposes the call-setup HTTP surface of the relay: a
// liveness endpoint, the call-control markup endpoint the telephony platform
// fetches on an incoming call, and the websocket endpoint the platform
// streams call audio to.
package server

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/fasthttp/websocket"
	"github.com/twilio/twilio-go/twiml"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	relay "github.com/bt-bridge/twilio-realtime"
	"github.com/bt-bridge/twilio-realtime/shared"
)

// Server handles call setup and hands each media stream to its own
// CallSession.
type Server struct {
	logger shared.LoggerAdapter
	cfg    *Config

	upgrader websocket.FastHTTPUpgrader
	http     *fasthttp.Server

	// dial is swappable so tests can run sessions without the network.
	dial func(ctx context.Context, logger shared.LoggerAdapter) (relay.ModelConn, error)

	// transcripts, when set, supplies a per-session transcript handler.
	transcripts func() relay.TranscriptHandler
}

func New(logger shared.LoggerAdapter, cfg *Config) (*Server, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if cfg == nil {
		return nil, shared.ErrNoConfig
	}
	s := &Server{
		logger: logger,
		cfg:    cfg,
		upgrader: websocket.FastHTTPUpgrader{
			CheckOrigin: func(ctx *fasthttp.RequestCtx) bool { return true },
		},
	}
	s.dial = func(ctx context.Context, logger shared.LoggerAdapter) (relay.ModelConn, error) {
		return relay.DialModel(ctx, logger, cfg.RelayModelConfig())
	}
	return s, nil
}

// SetTranscriptFactory attaches a per-session transcript consumer supplier.
// Must be called before ListenAndServe.
func (s *Server) SetTranscriptFactory(f func() relay.TranscriptHandler) {
	s.transcripts = f
}

// Handler routes the three endpoints.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/":
			s.handleIndex(ctx)
		case "/incoming-call":
			s.handleIncomingCall(ctx)
		case "/media-stream":
			s.handleMediaStream(ctx)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}
}

func (s *Server) ListenAndServe() error {
	s.http = &fasthttp.Server{
		Handler: s.Handler(),
		Name:    "twilio-realtime-relay/" + shared.Version,
	}
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.Info("listening", zap.String("addr", addr))
	return s.http.ListenAndServe(addr)
}

func (s *Server) Shutdown() error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown()
}

func (s *Server) handleIndex(ctx *fasthttp.RequestCtx) {
	body, err := sonic.Marshal(map[string]string{
		"message": "Twilio Media Stream Server is running!",
	})
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func (s *Server) handleIncomingCall(ctx *fasthttp.RequestCtx) {
	host := string(ctx.Host())
	markup, err := IncomingCallTwiML(s.cfg.Call, host)
	if err != nil {
		s.logger.Error("building call markup", err, zap.String("host", host))
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/xml")
	ctx.SetBodyString(markup)
}

// IncomingCallTwiML builds the call-setup markup: spoken greeting, a short
// pause, a second prompt, then the stream connect pointing back at this host.
func IncomingCallTwiML(cfg CallConfig, host string) (string, error) {
	if host == "" {
		return "", fmt.Errorf("empty request host")
	}
	return twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: cfg.Welcome, Voice: cfg.Voice},
		&twiml.VoicePause{Length: strconv.Itoa(cfg.PauseSeconds)},
		&twiml.VoiceSay{Message: cfg.Prompt, Voice: cfg.Voice},
		&twiml.VoiceConnect{InnerElements: []twiml.Element{
			&twiml.VoiceStream{Url: "wss://" + host + "/media-stream"},
		}},
	})
}

func (s *Server) handleMediaStream(ctx *fasthttp.RequestCtx) {
	err := s.upgrader.Upgrade(ctx, s.runCall)
	if err != nil {
		s.logger.Error("upgrading media stream connection", err,
			zap.String("remoteAddr", ctx.RemoteAddr().String()),
		)
	}
}

// runCall owns one caller connection from upgrade to teardown.
func (s *Server) runCall(conn *websocket.Conn) {
	logger := s.logger.With(zap.String("remoteAddr", conn.RemoteAddr().String()))
	logger.Info("caller connected")

	ctx := context.Background()
	model, err := s.dial(ctx, logger)
	if err != nil {
		logger.Error("dialing model", err)
		_ = conn.Close()
		return
	}
	session, err := relay.NewCallSession(ctx, logger, conn, model)
	if err != nil {
		logger.Error("creating call session", err)
		_ = conn.Close()
		_ = model.Close()
		return
	}
	if s.transcripts != nil {
		session.SetTranscriptHandler(s.transcripts())
	}
	if err := session.Run(); err != nil {
		logger.Error("call session ended", err, zap.String("streamSid", session.StreamSid()))
		return
	}
	logger.Info("call session ended", zap.String("streamSid", session.StreamSid()))
}
