package magicstrip

import "errors"

var (
	// ErrTimeout indicates a transport call that exceeded its deadline.
	// Recoverable: the caller retries on the next poll or advertisement.
	ErrTimeout = errors.New("timed out communicating with device")

	// ErrConnection indicates the transport rejected or dropped a call.
	ErrConnection = errors.New("device connection failed")

	// ErrUnknownEffect indicates an effect name the controller does not support.
	ErrUnknownEffect = errors.New("unknown effect")

	// ErrBadStateFrame indicates a state payload that could not be parsed.
	ErrBadStateFrame = errors.New("malformed state frame")

	errServiceNotFound = errors.New("magicstrip service not found on device")
	errCharsNotFound   = errors.New("magicstrip characteristics not found on device")
)
