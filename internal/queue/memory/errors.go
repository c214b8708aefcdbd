package memory

import "errors"

var (
	// ErrBrokerClosed is returned when using a broker that has been shut down.
	ErrBrokerClosed = errors.New("memory broker is closed")

	// ErrBrokerFull is returned when the broker holds Capacity messages.
	ErrBrokerFull = errors.New("memory broker is full")
)
