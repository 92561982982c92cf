package world

import (
	"errors"

	"bubbles.ai/internal/protocol"
)

// Precondition failures. A failing operation leaves the world untouched.
var (
	ErrInvalidEmission     = errors.New("invalid emission")
	ErrUnknownEntity       = errors.New("unknown entity")
	ErrNotOwner            = errors.New("not owner")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientMass    = errors.New("insufficient mass")
	ErrPortalExists        = errors.New("portal already exists")
	ErrInvalidInput        = errors.New("invalid input")
	ErrNoSpawnPoint        = errors.New("no spawn point")
)

// ErrorCode maps an error to its wire code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidEmission):
		return protocol.ErrInvalidEmission
	case errors.Is(err, ErrUnknownEntity):
		return protocol.ErrUnknownEntity
	case errors.Is(err, ErrNotOwner):
		return protocol.ErrNoPermission
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrInsufficientMass):
		return protocol.ErrInsufficientBalance
	case errors.Is(err, ErrPortalExists):
		return protocol.ErrConflict
	case errors.Is(err, ErrInvalidInput):
		return protocol.ErrBadRequest
	case errors.Is(err, ErrNoSpawnPoint):
		return protocol.ErrNoSpawn
	}
	return protocol.ErrInternal
}
