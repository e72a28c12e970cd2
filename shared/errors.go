package shared

import "errors"

var (
	ErrNoLogger           = errors.New("no logger provided")
	ErrNoConfig           = errors.New("no config provided")
	ErrNoAPIKey           = errors.New("no API key provided")
	ErrNoCallerConn       = errors.New("no caller connection provided")
	ErrNoModelConn        = errors.New("no model connection provided")
	ErrSessionClosed      = errors.New("session closed")
	ErrSessionAlreadyRun  = errors.New("session already running")
	ErrModelConnClosed    = errors.New("model connection closed")
	ErrMissingEnvVariable = errors.New("missing required environment variable")
)
