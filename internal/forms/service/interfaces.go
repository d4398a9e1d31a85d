package service

import (
	"context"

	"fishtank/internal/forms/models"
	"fishtank/internal/forms/ticket"
	"fishtank/pkg/domain"
)

// FormCatalog resolves form definitions by name.
type FormCatalog interface {
	Form(name models.FormName) (*models.FormDefinition, bool)
}

// SessionStore keeps mounted form instances.
// Error Contract: FindByID returns store.ErrNotFound for unknown ids.
type SessionStore interface {
	Save(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id domain.InstanceID) (*models.Session, error)
	FindOrCreate(ctx context.Context, id domain.InstanceID, create func() *models.Session) (*models.Session, bool, error)
}

// TicketService signs and verifies form tickets.
type TicketService interface {
	Issue(session *models.Session) (string, error)
	Verify(raw string) (*ticket.Verified, error)
}

// Dispatcher delivers one accepted submission to the relay.
// Error Contract: config_missing, relay_rejected (Message is the relay
// reason) or relay_unavailable domain errors.
type Dispatcher interface {
	Dispatch(ctx context.Context, d models.Dispatch) error
}
