package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors for programmatic checks via errors.Is().
var (
	// ErrNotFound indicates an unknown instance or definition id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidPort indicates a port absent from the instance's current snapshot.
	ErrInvalidPort = errors.New("invalid port")

	// ErrInvalidEndpoint indicates a connection endpoint that is not in the graph.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrSelfLoop indicates a connection from an instance to itself.
	ErrSelfLoop = errors.New("self loop")

	// ErrPortOccupied indicates a target input that already has an incoming connection.
	ErrPortOccupied = errors.New("port occupied")

	// ErrDefinitionMismatch indicates reconciliation against the wrong definition.
	ErrDefinitionMismatch = errors.New("definition mismatch")

	// ErrInvalidStatus indicates a status outside idle/running/success/error.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidTrigger indicates an unsupported trigger method.
	ErrInvalidTrigger = errors.New("invalid trigger")

	// ErrMalformedDocument indicates a wire document that cannot be hydrated.
	ErrMalformedDocument = errors.New("malformed document")
)

// EditError is returned by graph editing operations. The graph is never
// modified when one is returned.
type EditError struct {
	Op  string
	Err error
	Msg string
}

func (e *EditError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Msg)
}

func (e *EditError) Unwrap() error { return e.Err }

func editErr(op string, err error, format string, args ...any) error {
	return &EditError{Op: op, Err: err, Msg: fmt.Sprintf(format, args...)}
}

// MalformedError locates the first problem found while decoding a wire
// document. Path uses a JSON-pointer-like notation such as content.edges[2].
type MalformedError struct {
	Path string
	Msg  string
}

func (e *MalformedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", ErrMalformedDocument.Error(), e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", ErrMalformedDocument.Error(), e.Path, e.Msg)
}

func (e *MalformedError) Unwrap() error { return ErrMalformedDocument }

func malformed(path, format string, args ...any) error {
	return &MalformedError{Path: path, Msg: fmt.Sprintf(format, args...)}
}
