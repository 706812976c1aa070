package protocol

const (
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrBadRequest      = "E_BAD_REQUEST"
	ErrUnknownBlock    = "E_UNKNOWN_BLOCK"
	ErrNoPermission    = "E_NO_PERMISSION"
	ErrRateLimit       = "E_RATE_LIMIT"
	ErrBusy            = "E_BUSY"
	ErrInternal        = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrUnknownBlock:    {},
	ErrNoPermission:    {},
	ErrRateLimit:       {},
	ErrBusy:            {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
