// Package domain provides type-safe identifiers.
package domain

import (
	"github.com/google/uuid"

	dErrors "fishtank/pkg/domain-errors"
)

// InstanceID identifies one mounted form instance.
type InstanceID uuid.UUID

// NewInstanceID returns a random instance id.
func NewInstanceID() InstanceID {
	return InstanceID(uuid.New())
}

// ParseInstanceID is used at trust boundaries (ticket claims, API inputs).
func ParseInstanceID(s string) (InstanceID, error) {
	if s == "" {
		return InstanceID(uuid.Nil), dErrors.New(dErrors.CodeInvalidInput, "instance ID cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return InstanceID(uuid.Nil), dErrors.New(dErrors.CodeInvalidInput, "invalid instance ID")
	}
	return InstanceID(id), nil
}

func (id InstanceID) String() string { return uuid.UUID(id).String() }

func (id InstanceID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
