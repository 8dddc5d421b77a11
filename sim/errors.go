// Typed errors for the kernel abstraction layer.
//
// Setup-time errors (ConfigurationError, ConnectionError, InitializationError)
// surface immediately to the caller. Stepping errors
// (SimulationCommunicationError) abort the current run but leave previously
// collected metrics intact. UnknownEntityError is recoverable by the caller.
// Teardown paths never return errors.

package sim

import "fmt"

// ConfigurationError reports an invalid or missing option detected before
// any simulation work starts.
type ConfigurationError struct {
	Option string // offending option name
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: option %q: %s", e.Option, e.Reason)
}

// ConnectionError reports that a backend process could not be launched or
// the connection handshake failed within its timeout.
type ConnectionError struct {
	Backend string // backend kind label
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("backend %s: connection failed: %v", e.Backend, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// InitializationError reports that the backend connected but the network
// description could not be loaded or built.
type InitializationError struct {
	Network string // network name or template identifier
	Err     error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("network %q: initialization failed: %v", e.Network, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// SimulationCommunicationError reports a mid-run I/O failure against the
// backend. Vehicle-state consistency can no longer be guaranteed, so the
// run must be treated as failed rather than retried.
type SimulationCommunicationError struct {
	Op  string // operation in flight, e.g. "advance"
	Err error
}

func (e *SimulationCommunicationError) Error() string {
	return fmt.Sprintf("simulation communication failed during %s: %v", e.Op, e.Err)
}

func (e *SimulationCommunicationError) Unwrap() error { return e.Err }

// UnknownEntityError reports a query for an entity id that is not present
// in the current snapshot, typically a vehicle that has already left.
type UnknownEntityError struct {
	Kind string // entity kind, e.g. "vehicle"
	ID   string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("unknown %s id %q", e.Kind, e.ID)
}

// EmissionConversionError reports a post-run problem converting the
// emission log. It does not invalidate already-collected run metrics.
type EmissionConversionError struct {
	Path string
	Err  error
}

func (e *EmissionConversionError) Error() string {
	return fmt.Sprintf("emission conversion of %s failed: %v", e.Path, e.Err)
}

func (e *EmissionConversionError) Unwrap() error { return e.Err }
