package protocol

import "github.com/rotisserie/eris"

var (
	ErrMalformedPacket = eris.New("malformed packet")
	ErrNameTooLong     = eris.New("player name exceeds maximum length")
	ErrTooManyEntities = eris.New("snapshot exceeds maximum entity count")
	ErrUnknownMessage  = eris.New("unknown message type")
)
