package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rmax-ai/lambdanodes/pkg/catalog"
	"github.com/rmax-ai/lambdanodes/pkg/pipeline"
)

var (
	// ErrNetworkFailure indicates the daemon could not be reached or refused
	// a pipeline submission.
	ErrNetworkFailure = errors.New("network failure")

	// ErrConflict indicates a 409 that has no more specific meaning.
	ErrConflict = errors.New("conflict")
)

// StatusError is a non-2xx answer from the daemon. It unwraps to the domain
// sentinel matching its error code, so callers can use errors.Is against
// catalog and pipeline errors.
type StatusError struct {
	StatusCode int
	Code       string
	Details    string
	Violations []pipeline.Violation
}

func (e *StatusError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("daemon returned %d %s: %s", e.StatusCode, e.Code, e.Details)
	}
	return fmt.Sprintf("daemon returned %d %s", e.StatusCode, e.Code)
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case "invalid_node":
		return catalog.ErrValidation
	case "forbidden":
		return catalog.ErrForbidden
	case "node_in_use":
		return catalog.ErrInUse
	case "malformed_document":
		return pipeline.ErrMalformedDocument
	case "invalid_trigger":
		return pipeline.ErrInvalidTrigger
	}
	switch e.StatusCode {
	case http.StatusNotFound:
		return catalog.ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	}
	return nil
}
