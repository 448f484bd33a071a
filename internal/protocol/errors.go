package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Server load.
	ErrBusy = "E_BUSY"

	// Request layer.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrNotFound   = "E_NOT_FOUND"
	ErrTooLarge   = "E_TOO_LARGE"
	ErrOutOfWorld = "E_OUT_OF_WORLD"
	ErrPlacement  = "E_PLACEMENT"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrBusy:            {},
	ErrBadRequest:      {},
	ErrNotFound:        {},
	ErrTooLarge:        {},
	ErrOutOfWorld:      {},
	ErrPlacement:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
