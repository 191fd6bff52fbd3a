package domain

import "errors"

var (
	// ErrInvalidKind indicates a Value with an unsupported payload kind.
	ErrInvalidKind = errors.New("invalid value kind")
	// ErrNoDevices is returned by an accelerator backend that found no
	// devices to monitor.
	ErrNoDevices = errors.New("no devices detected")
)
