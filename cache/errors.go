package cache

import "github.com/cockroachdb/errors"

var (
	// ErrNotConnected is returned by Remote when an operation is attempted
	// while the connection state is not connected.
	ErrNotConnected = errors.New("cache: remote not connected")

	// ErrTransport marks failures reported by the remote store or network.
	ErrTransport = errors.New("cache: transport failure")

	// ErrConfiguration marks invalid construction parameters.
	ErrConfiguration = errors.New("cache: invalid configuration")

	// ErrSerialization marks values that could not be encoded or decoded.
	ErrSerialization = errors.New("cache: serialization failure")

	// ErrNotFound is returned by a Transport when the key does not exist.
	ErrNotFound = errors.New("cache: key not found")
)
