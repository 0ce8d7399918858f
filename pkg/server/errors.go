package server

import "github.com/rotisserie/eris"

var (
	ErrServerRunning    = eris.New("server is already running")
	ErrServerNotRunning = eris.New("server is not running")
	ErrServerFull       = eris.New("server has no free player slot")
	ErrSessionTimedOut  = eris.New("session timed out")
)
