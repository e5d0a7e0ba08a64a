package domain

import (
	"errors"
	"fmt"
)

// ErrMissingScope is returned when an operation runs without a tenant/app scope.
var ErrMissingScope = errors.New("tenant/app scope required")

// ErrNotFound is returned when a referenced row does not exist or is no longer valid.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrUnknownField is returned on write paths when a field name cannot be
// resolved against the catalog.
type ErrUnknownField struct {
	Name string
}

func (e ErrUnknownField) Error() string {
	return fmt.Sprintf("unknown field %q", e.Name)
}

// ErrUnsupportedOperator is returned when an operator is not valid for the
// compile mode it was used in.
type ErrUnsupportedOperator struct {
	Operator Operator
	Mode     string
}

func (e ErrUnsupportedOperator) Error() string {
	return fmt.Sprintf("operator %q is not supported in %s mode", e.Operator, e.Mode)
}

// ErrDuplicateName is returned when a catalog name is already taken within the scope.
type ErrDuplicateName struct {
	Entity EntityType
	Name   string
}

func (e ErrDuplicateName) Error() string {
	return fmt.Sprintf("%s name %q already exists", e.Entity, e.Name)
}

// ErrProtected is returned when a system or default catalog entry would be
// modified in a way its flags forbid.
type ErrProtected struct {
	Entity EntityType
	ID     string
	Reason string
}

func (e ErrProtected) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s %s is protected", e.Entity, e.ID)
	}
	return fmt.Sprintf("%s %s is protected: %s", e.Entity, e.ID, e.Reason)
}

// ErrInvalidField is returned when a field definition fails validation.
type ErrInvalidField struct {
	Name   string
	Reason string
}

func (e ErrInvalidField) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Name, e.Reason)
}
