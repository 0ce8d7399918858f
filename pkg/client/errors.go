package client

import "github.com/rotisserie/eris"

var (
	ErrNotConnected   = eris.New("client not connected")
	ErrAlreadyStarted = eris.New("client already started")
	ErrNotStarted     = eris.New("client not started")
	ErrConnectRefused = eris.New("server refused the connection")
	ErrServerTimedOut = eris.New("server stopped answering")
)
