// Package stage classifies fatal startup errors by the pipeline stage that
// produced them.
package stage

import (
	"errors"
	"fmt"
)

type Stage int

const (
	Unknown Stage = iota
	Discovery
	Radio
	Activation
	Address
	Firewall
	Listener
)

func (s Stage) String() string {
	switch s {
	case Discovery:
		return "device discovery"
	case Radio:
		return "radio enable"
	case Activation:
		return "activation"
	case Address:
		return "address resolution"
	case Firewall:
		return "firewall"
	case Listener:
		return "listener bind"
	default:
		return "unknown"
	}
}

// Error is a fatal error tagged with the stage that failed.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with s. A nil err stays nil and an already tagged error
// keeps its original stage.
func Wrap(s Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Stage: s, Err: err}
}

// Of returns the stage err was tagged with, or Unknown.
func Of(err error) Stage {
	var se *Error
	if errors.As(err, &se) {
		return se.Stage
	}
	return Unknown
}
