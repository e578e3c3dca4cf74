package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrMapNotFound     = "E_MAP_NOT_FOUND"

	// Rule/action layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrInvalidPath   = "E_INVALID_PATH"
	ErrBusy          = "E_BUSY"
	ErrNoResource    = "E_NO_RESOURCE"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrPaused        = "E_PAUSED"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrMapNotFound:     {},
	ErrBadRequest:      {},
	ErrInvalidPath:     {},
	ErrBusy:            {},
	ErrNoResource:      {},
	ErrInvalidTarget:   {},
	ErrPaused:          {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
