package ecs

import "github.com/rotisserie/eris"

var (
	ErrOutOfRange        = eris.New("entity id out of store range")
	ErrCapacityExhausted = eris.New("no free entity id left")
	ErrStaleRef          = eris.New("stale entity reference")
	ErrTooManyStores     = eris.New("signature mask has no free bit")
	ErrAlreadyAlive      = eris.New("entity id is already alive")
)
