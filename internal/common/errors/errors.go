package commonerrors

// Sentinels for the realtime subsystem. Each is a DomainError so callers can
// branch on Code() or match with errors.Is.
var (
	ErrMissingCredential = NewDomainError(
		"MISSING_CREDENTIAL",
		CategoryAuth,
		"no access token available",
	)

	ErrTokenExpired = NewDomainError(
		"TOKEN_EXPIRED",
		CategoryAuth,
		"access token expired",
	)

	ErrInvalidToken = NewDomainError(
		"INVALID_TOKEN",
		CategoryAuth,
		"token is not valid",
	)

	ErrNotConnected = NewDomainError(
		"NOT_CONNECTED",
		CategoryConnection,
		"websocket is not connected",
	)

	ErrConnectionClosed = NewDomainError(
		"CONNECTION_CLOSED",
		CategoryConnection,
		"connection closed",
	)

	ErrReconnectExhausted = NewDomainError(
		"RECONNECT_EXHAUSTED",
		CategoryConnection,
		"max reconnect attempts reached",
	)

	ErrInvalidEvent = NewDomainError(
		"INVALID_EVENT",
		CategoryValidation,
		"invalid event",
	)

	ErrInvalidScope = NewDomainError(
		"INVALID_SCOPE",
		CategoryValidation,
		"chat id must be positive",
	)

	ErrDecodeFailed = NewDomainError(
		"DECODE_FAILED",
		CategoryValidation,
		"failed to decode frame",
	)

	ErrMarshalError = NewDomainError(
		"MARSHAL_ERROR",
		CategoryInternal,
		"failed to marshal data",
	)

	ErrHandlerFailed = NewDomainError(
		"HANDLER_FAILED",
		CategoryInternal,
		"event handler failed",
	)

	ErrInvalidConfig = NewDomainError(
		"INVALID_CONFIG",
		CategoryValidation,
		"invalid configuration",
	)
)
