package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrRateLimit       = "E_RATE_LIMIT"

	// Rule layer.
	ErrBadRequest          = "E_BAD_REQUEST"
	ErrInvalidEmission     = "E_INVALID_EMISSION"
	ErrUnknownEntity       = "E_UNKNOWN_ENTITY"
	ErrNoPermission        = "E_NO_PERMISSION"
	ErrInsufficientBalance = "E_INSUFFICIENT_BALANCE"
	ErrConflict            = "E_CONFLICT"
	ErrNoSpawn             = "E_NO_SPAWN"

	// Timelines.
	ErrReplayGap = "E_REPLAY_GAP"
	ErrStale     = "E_STALE"
	ErrInternal  = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:     {},
	ErrRateLimit:           {},
	ErrBadRequest:          {},
	ErrInvalidEmission:     {},
	ErrUnknownEntity:       {},
	ErrNoPermission:        {},
	ErrInsufficientBalance: {},
	ErrConflict:            {},
	ErrNoSpawn:             {},
	ErrReplayGap:           {},
	ErrStale:               {},
	ErrInternal:            {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
