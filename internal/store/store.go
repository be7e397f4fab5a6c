package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a scoped record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrSettingsNotFound is returned when a professional has no settings row.
	ErrSettingsNotFound = errors.New("store: settings not found")
	// ErrSlotTaken is returned when an active appointment already covers the slot.
	ErrSlotTaken = errors.New("store: slot already booked")
)

// Store is the persistence boundary of the booking pipeline. Every method
// except ProfessionalByPhone is scoped by professional id.
type Store interface {
	ProfessionalByPhone(ctx context.Context, phone string) (*Professional, error)
	SettingsFor(ctx context.Context, professionalID uuid.UUID) (*Settings, error)

	// FindOrCreateActiveConversation atomically returns the single active
	// conversation for (professional, phone), creating it when absent. The
	// boolean is true when a new row was created.
	FindOrCreateActiveConversation(ctx context.Context, professionalID uuid.UUID, clientPhone string) (*Conversation, bool, error)
	SetConversationClientName(ctx context.Context, professionalID, conversationID uuid.UUID, name string) error
	LinkConversationAppointment(ctx context.Context, professionalID, conversationID, appointmentID uuid.UUID) error

	// InsertMessage assigns ID and CreatedAt and touches the conversation.
	InsertMessage(ctx context.Context, msg *Message) error
	// ListMessages returns the conversation history oldest first.
	ListMessages(ctx context.Context, professionalID, conversationID uuid.UUID) ([]Message, error)

	ListAvailability(ctx context.Context, professionalID uuid.UUID) ([]AvailabilityRule, error)
	ListActiveServices(ctx context.Context, professionalID uuid.UUID) ([]Service, error)
	ListActiveAppointments(ctx context.Context, professionalID uuid.UUID) ([]Appointment, error)

	// CreateAppointment assigns ID and CreatedAt. It returns ErrSlotTaken when
	// the slot overlaps an active appointment of the same professional.
	CreateAppointment(ctx context.Context, appt *Appointment) error
}
