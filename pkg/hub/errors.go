package hub

import "errors"

var (
	// ErrSetupFailed indicates an unrecoverable transport error during the
	// first contact with a device. The whole setup attempt should be retried
	// later; the process keeps running.
	ErrSetupFailed = errors.New("bridge setup failed, retry later")

	// ErrAlreadyRunning indicates Run was called on a hub that is running.
	ErrAlreadyRunning = errors.New("hub already running")

	// ErrUnknownDevice indicates a lookup for an address that is not
	// registered.
	ErrUnknownDevice = errors.New("unknown device")
)
