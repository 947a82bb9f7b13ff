package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for programmatic checks via errors.Is().
var (
	// ErrValidation indicates a malformed definition draft.
	ErrValidation = errors.New("invalid node definition")

	// ErrNotFound indicates an unknown definition id.
	ErrNotFound = errors.New("node definition not found")

	// ErrForbidden indicates an attempted mutation of an internal definition.
	ErrForbidden = errors.New("node definition is internal")

	// ErrInUse indicates a definition still placed in a stored pipeline.
	ErrInUse = errors.New("node definition is in use")
)

// ValidationError describes which draft field is invalid.
// Wraps ErrValidation for errors.Is() compatibility.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", ErrValidation.Error(), e.Field, e.Msg)
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ValidateDraft checks that the name is present and that port names are
// non-empty and unique within each direction.
func ValidateDraft(d Draft) error {
	if strings.TrimSpace(d.Name) == "" {
		return &ValidationError{Field: "name", Msg: "must not be empty"}
	}
	if err := ValidatePorts("inputs", d.Inputs); err != nil {
		return err
	}
	return ValidatePorts("outputs", d.Outputs)
}

// ValidatePorts checks one direction's port list. field names the list in
// the returned *ValidationError.
func ValidatePorts(field string, ports []string) error {
	seen := make(map[string]struct{}, len(ports))
	for _, p := range ports {
		if strings.TrimSpace(p) == "" {
			return &ValidationError{Field: field, Msg: "port name must not be empty"}
		}
		if _, dup := seen[p]; dup {
			return &ValidationError{Field: field, Msg: fmt.Sprintf("duplicate port name %q", p)}
		}
		seen[p] = struct{}{}
	}
	return nil
}

// NotFound returns an error wrapping ErrNotFound for id.
func NotFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Forbidden returns an error wrapping ErrForbidden for def.
func Forbidden(def NodeDefinition) error {
	return fmt.Errorf("%w: %s (%s)", ErrForbidden, def.Name, def.ID)
}
