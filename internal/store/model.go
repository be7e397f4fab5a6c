package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Vuuar/rescall/internal/scheduling"
)

// Professional is the tenant root. Phone is the digits-only WhatsApp identity.
type Professional struct {
	ID           uuid.UUID
	Name         string
	BusinessName string
	Phone        string
	Email        string
	CreatedAt    time.Time
}

const (
	DefaultLanguage = "fr"
	DefaultTimezone = "Europe/Paris"
)

// Settings is the per-professional runtime configuration read by the webhook.
type Settings struct {
	ProfessionalID            uuid.UUID
	AssistantEnabled          bool
	VoiceTranscriptionEnabled bool
	Language                  string
	Timezone                  string
	BusinessName              string
	WelcomeMessage            string
	NotifyOnBooking           bool
	NotificationEmail         string
	EnforceWorkingHours       bool
}

// DefaultSettings returns the defaults applied to a freshly created professional.
func DefaultSettings(professionalID uuid.UUID) Settings {
	return Settings{
		ProfessionalID:   professionalID,
		AssistantEnabled: true,
		Language:         DefaultLanguage,
		Timezone:         DefaultTimezone,
	}
}

// Normalize fills defaults and validates the timezone.
func (s *Settings) Normalize() error {
	s.Language = strings.ToLower(strings.TrimSpace(s.Language))
	if s.Language == "" {
		s.Language = DefaultLanguage
	}
	s.Timezone = strings.TrimSpace(s.Timezone)
	if s.Timezone == "" {
		s.Timezone = DefaultTimezone
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("store: invalid timezone %q: %w", s.Timezone, err)
	}
	s.NotificationEmail = strings.TrimSpace(s.NotificationEmail)
	return nil
}

// Location returns the professional's timezone, UTC when unset or invalid.
func (s Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil || s.Timezone == "" {
		return time.UTC
	}
	return loc
}

// Service is something a professional sells; Duration drives appointment end times.
type Service struct {
	ID              uuid.UUID
	ProfessionalID  uuid.UUID
	Name            string
	DurationMinutes int
	PriceCents      int64
	Active          bool
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// FindServiceByName matches case-insensitively against active services.
func FindServiceByName(services []Service, name string) (Service, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Service{}, false
	}
	for _, svc := range services {
		if svc.Active && strings.EqualFold(strings.TrimSpace(svc.Name), name) {
			return svc, true
		}
	}
	return Service{}, false
}

// AvailabilityRule is the opening window for one weekday.
type AvailabilityRule struct {
	ID             uuid.UUID
	ProfessionalID uuid.UUID
	Weekday        time.Weekday
	OpenTime       string
	CloseTime      string
	Closed         bool
}

// DayWindows converts rules for the working-hours check.
func DayWindows(rules []AvailabilityRule) []scheduling.DayWindow {
	windows := make([]scheduling.DayWindow, 0, len(rules))
	for _, r := range rules {
		windows = append(windows, scheduling.DayWindow{
			Weekday: r.Weekday,
			Open:    r.OpenTime,
			Close:   r.CloseTime,
			Closed:  r.Closed,
		})
	}
	return windows
}

type ConversationStatus string

const (
	ConversationActive ConversationStatus = "active"
	ConversationClosed ConversationStatus = "closed"
)

// Conversation is the thread between one professional and one client phone.
type Conversation struct {
	ID             uuid.UUID
	ProfessionalID uuid.UUID
	ClientPhone    string
	ClientName     string
	Status         ConversationStatus
	AppointmentID  *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageVoice MessageType = "voice"
)

// Message is immutable once stored.
type Message struct {
	ID              uuid.UUID
	ConversationID  uuid.UUID
	ProfessionalID  uuid.UUID
	Content         string
	FromClient      bool
	Type            MessageType
	VoiceTranscript string
	MediaRef        string
	CreatedAt       time.Time
}

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

// Active reports whether the status blocks its slot.
func (s AppointmentStatus) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// ActiveStatuses lists the statuses that count toward slot conflicts.
var ActiveStatuses = []AppointmentStatus{StatusScheduled, StatusConfirmed}

type Appointment struct {
	ID             uuid.UUID
	ProfessionalID uuid.UUID
	ConversationID *uuid.UUID
	ServiceID      *uuid.UUID
	ServiceType    string
	ClientName     string
	ClientPhone    string
	ClientEmail    string
	StartAt        time.Time
	EndAt          time.Time
	Status         AppointmentStatus
	Notes          string
	CreatedAt      time.Time
}

func (a Appointment) Interval() scheduling.Interval {
	return scheduling.Interval{Start: a.StartAt, End: a.EndAt}
}

// BusyIntervals returns the intervals of active appointments only.
func BusyIntervals(appts []Appointment) []scheduling.Interval {
	out := make([]scheduling.Interval, 0, len(appts))
	for _, a := range appts {
		if a.Status.Active() {
			out = append(out, a.Interval())
		}
	}
	return out
}
