// Package errors is the simulator's error vocabulary. It is a thin layer over
// github.com/juju/errors that adds the two fatal error classes the ARP model
// distinguishes: configuration errors and protocol errors. Both indicate a
// misconfigured scenario and halt the simulation run.
package errors

import "github.com/juju/errors"

// New is equivalent to New from the github.com/juju/errors package.
func New(message string) error {
	return errors.New(message)
}

// Errorf is equivalent to Errorf from the github.com/juju/errors package.
func Errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

// Annotate is equivalent to Annotate from the github.com/juju/errors package.
func Annotate(other error, message string) error {
	return errors.Annotate(other, message)
}

// Annotatef is equivalent to Annotatef from the github.com/juju/errors package.
func Annotatef(other error, format string, args ...interface{}) error {
	return errors.Annotatef(other, format, args...)
}

// Cause is equivalent to Cause from the github.com/juju/errors package.
func Cause(err error) error {
	return errors.Cause(err)
}

type config struct {
	errors.Err
}

// Configf constructs a new configuration error: an unsupported protocol or
// hardware type, a malformed static-table line, an invalid topology.
func Configf(format string, args ...interface{}) error {
	err := errors.NewErr(format, args...)
	err.SetLocation(1)
	return &config{err}
}

// IsConfig returns true if err is a configuration error as constructed using
// Configf.
func IsConfig(err error) bool {
	_, ok := errors.Cause(err).(*config)
	return ok
}

type protocol struct {
	errors.Err
}

// Protocolf constructs a new protocol error: a received packet carrying an
// unsupported protocol type or an unknown opcode, or a cache hit whose
// protocol type does not match the request.
func Protocolf(format string, args ...interface{}) error {
	err := errors.NewErr(format, args...)
	err.SetLocation(1)
	return &protocol{err}
}

// IsProtocol returns true if err is a protocol error as constructed using
// Protocolf.
func IsProtocol(err error) bool {
	_, ok := errors.Cause(err).(*protocol)
	return ok
}

// IsFatal returns true if err should halt the simulation run.
func IsFatal(err error) bool {
	return IsConfig(err) || IsProtocol(err)
}
