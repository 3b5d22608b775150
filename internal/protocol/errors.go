package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest    = "E_PROTO_BAD_REQUEST"
	ErrBadProtocolVersion = "E_BAD_PROTOCOL_VERSION"
	ErrBusy               = "E_BUSY"

	// Command layer.
	ErrBadRequest     = "E_BAD_REQUEST"
	ErrUnknownCommand = "E_UNKNOWN_COMMAND"
	ErrInvalidTarget  = "E_INVALID_TARGET"
	ErrNoArena        = "E_NO_ARENA"
	ErrInternal       = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:    {},
	ErrBadProtocolVersion: {},
	ErrBusy:               {},
	ErrBadRequest:         {},
	ErrUnknownCommand:     {},
	ErrInvalidTarget:      {},
	ErrNoArena:            {},
	ErrInternal:           {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
