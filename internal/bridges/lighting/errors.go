package lighting

import "errors"

// Domain errors for the lighting bridge package.
var (
	// ErrUnknownDevice is returned when a device identifier is not one of
	// the fixed zones wired to the controller.
	ErrUnknownDevice = errors.New("lighting: unknown device")

	// ErrUnknownAction is returned when an action token is neither "on" nor "off".
	ErrUnknownAction = errors.New("lighting: unknown action")

	// ErrUnknownCommand is returned when a (device, action) pair has no frame
	// in the command table.
	ErrUnknownCommand = errors.New("lighting: unknown command")

	// ErrInvalidFrame is returned when a frame string is not valid hex.
	ErrInvalidFrame = errors.New("lighting: invalid frame")

	// ErrConnectionFailed is returned when the controller cannot be reached
	// after all connection attempts are exhausted.
	ErrConnectionFailed = errors.New("lighting: connection to controller failed")

	// ErrSendFailed is returned when a frame could not be written even after
	// the single reconnect-and-retry cycle.
	ErrSendFailed = errors.New("lighting: frame send failed")

	// ErrLinkClosed is returned by operations on a link after Close.
	ErrLinkClosed = errors.New("lighting: link closed")
)
