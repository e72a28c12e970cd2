package server

import (
	"testing"

	"github.com/valyala/fasthttp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bt-bridge/twilio-realtime/shared"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Model.APIKey = "sk-test"
	s, err := New(shared.NewNopLogger(), cfg)
	require.NoError(t, err)
	return s
}

func serveRequest(t *testing.T, s *Server, uri string) *fasthttp.RequestCtx {
	t.Helper()
	var req fasthttp.Request
	req.SetRequestURI(uri)
	ctx := new(fasthttp.RequestCtx)
	ctx.Init(&req, nil, nil)
	s.Handler()(ctx)
	return ctx
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	assert.ErrorIs(t, err, shared.ErrNoLogger)

	_, err = New(shared.NewNopLogger(), nil)
	assert.ErrorIs(t, err, shared.ErrNoConfig)
}

func TestIndexEndpoint(t *testing.T) {
	s := newTestServer(t)
	ctx := serveRequest(t, s, "http://relay.example.com/")

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "application/json", string(ctx.Response.Header.ContentType()))
	assert.JSONEq(
		t,
		`{"message":"Twilio Media Stream Server is running!"}`,
		string(ctx.Response.Body()),
	)
}

func TestUnknownPath(t *testing.T) {
	s := newTestServer(t)
	ctx := serveRequest(t, s, "http://relay.example.com/nope")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestIncomingCallEndpoint(t *testing.T) {
	s := newTestServer(t)
	ctx := serveRequest(t, s, "http://relay.example.com/incoming-call")

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "application/xml", string(ctx.Response.Header.ContentType()))
	body := string(ctx.Response.Body())
	assert.Contains(t, body, "<Response>")
	assert.Contains(t, body, defaultCallWelcome)
	assert.Contains(t, body, `voice="`+defaultCallVoice+`"`)
	assert.Contains(t, body, `url="wss://relay.example.com/media-stream"`)
}

func TestIncomingCallTwiML(t *testing.T) {
	cfg := CallConfig{
		Voice:        "Polly.Joanna",
		Welcome:      "Thank you for calling.",
		Prompt:       "Go ahead.",
		PauseSeconds: 2,
	}

	markup, err := IncomingCallTwiML(cfg, "clinic.example.com")
	require.NoError(t, err)
	assert.Contains(t, markup, `<Say voice="Polly.Joanna">Thank you for calling.</Say>`)
	assert.Contains(t, markup, `<Pause length="2"`)
	assert.Contains(t, markup, `<Say voice="Polly.Joanna">Go ahead.</Say>`)
	assert.Contains(t, markup, `<Connect>`)
	assert.Contains(t, markup, `<Stream url="wss://clinic.example.com/media-stream"`)
}

func TestIncomingCallTwiMLEmptyHost(t *testing.T) {
	_, err := IncomingCallTwiML(DefaultConfig().Call, "")
	assert.Error(t, err)
}
