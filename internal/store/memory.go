package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Vuuar/rescall/internal/scheduling"
)

// MemoryStore is an in-process Store used in tests and local development.
type MemoryStore struct {
	mu            sync.RWMutex
	now           func() time.Time
	professionals map[uuid.UUID]Professional
	settings      map[uuid.UUID]Settings
	services      map[uuid.UUID][]Service
	availability  map[uuid.UUID][]AvailabilityRule
	conversations map[uuid.UUID]*Conversation
	messages      map[uuid.UUID][]Message
	appointments  map[uuid.UUID]*Appointment
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:           func() time.Time { return time.Now().UTC() },
		professionals: make(map[uuid.UUID]Professional),
		settings:      make(map[uuid.UUID]Settings),
		services:      make(map[uuid.UUID][]Service),
		availability:  make(map[uuid.UUID][]AvailabilityRule),
		conversations: make(map[uuid.UUID]*Conversation),
		messages:      make(map[uuid.UUID][]Message),
		appointments:  make(map[uuid.UUID]*Appointment),
	}
}

var _ Store = (*MemoryStore)(nil)

// AddProfessional seeds a professional. A nil settings pointer leaves the
// professional without settings.
func (s *MemoryStore) AddProfessional(p Professional, settings *Settings) Professional {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.professionals[p.ID] = p
	if settings != nil {
		cp := *settings
		cp.ProfessionalID = p.ID
		s.settings[p.ID] = cp
	}
	return p
}

func (s *MemoryStore) AddService(svc Service) Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc.ID == uuid.Nil {
		svc.ID = uuid.New()
	}
	s.services[svc.ProfessionalID] = append(s.services[svc.ProfessionalID], svc)
	return svc
}

func (s *MemoryStore) AddAvailability(rule AvailabilityRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	s.availability[rule.ProfessionalID] = append(s.availability[rule.ProfessionalID], rule)
}

// AddAppointment seeds an appointment without the overlap check, the way a
// dashboard edit would.
func (s *MemoryStore) AddAppointment(appt Appointment) Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = s.now()
	}
	cp := appt
	s.appointments[appt.ID] = &cp
	return appt
}

// Conversations returns every conversation of a professional.
func (s *MemoryStore) Conversations(professionalID uuid.UUID) []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Conversation
	for _, c := range s.conversations {
		if c.ProfessionalID == professionalID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Appointments returns every appointment of a professional, any status.
func (s *MemoryStore) Appointments(professionalID uuid.UUID) []Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Appointment
	for _, a := range s.appointments {
		if a.ProfessionalID == professionalID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out
}

func (s *MemoryStore) ProfessionalByPhone(_ context.Context, phone string) (*Professional, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.professionals {
		if p.Phone == phone {
			cp := p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) SettingsFor(_ context.Context, professionalID uuid.UUID) (*Settings, error) {
	s.mu.RLock()
	settings, ok := s.settings[professionalID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSettingsNotFound
	}
	if err := settings.Normalize(); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *MemoryStore) FindOrCreateActiveConversation(_ context.Context, professionalID uuid.UUID, clientPhone string) (*Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.ProfessionalID == professionalID && c.ClientPhone == clientPhone && c.Status == ConversationActive {
			cp := *c
			return &cp, false, nil
		}
	}
	now := s.now()
	conv := &Conversation{
		ID:             uuid.New(),
		ProfessionalID: professionalID,
		ClientPhone:    clientPhone,
		Status:         ConversationActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.conversations[conv.ID] = conv
	cp := *conv
	return &cp, true, nil
}

func (s *MemoryStore) conversationFor(professionalID, conversationID uuid.UUID) (*Conversation, error) {
	conv, ok := s.conversations[conversationID]
	if !ok || conv.ProfessionalID != professionalID {
		return nil, ErrNotFound
	}
	return conv, nil
}

func (s *MemoryStore) SetConversationClientName(_ context.Context, professionalID, conversationID uuid.UUID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.conversationFor(professionalID, conversationID)
	if err != nil {
		return err
	}
	conv.ClientName = name
	conv.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) LinkConversationAppointment(_ context.Context, professionalID, conversationID, appointmentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.conversationFor(professionalID, conversationID)
	if err != nil {
		return err
	}
	id := appointmentID
	conv.AppointmentID = &id
	conv.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) InsertMessage(_ context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.conversationFor(msg.ProfessionalID, msg.ConversationID)
	if err != nil {
		return err
	}
	msg.ID = uuid.New()
	msg.CreatedAt = s.now()
	// Keep creation order strictly increasing so history ordering is stable.
	if history := s.messages[conv.ID]; len(history) > 0 {
		if last := history[len(history)-1].CreatedAt; !msg.CreatedAt.After(last) {
			msg.CreatedAt = last.Add(time.Microsecond)
		}
	}
	s.messages[conv.ID] = append(s.messages[conv.ID], *msg)
	conv.UpdatedAt = msg.CreatedAt
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, professionalID, conversationID uuid.UUID) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.conversationFor(professionalID, conversationID); err != nil {
		return nil, err
	}
	out := make([]Message, len(s.messages[conversationID]))
	copy(out, s.messages[conversationID])
	return out, nil
}

func (s *MemoryStore) ListAvailability(_ context.Context, professionalID uuid.UUID) ([]AvailabilityRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AvailabilityRule, len(s.availability[professionalID]))
	copy(out, s.availability[professionalID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weekday < out[j].Weekday })
	return out, nil
}

func (s *MemoryStore) ListActiveServices(_ context.Context, professionalID uuid.UUID) ([]Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Service
	for _, svc := range s.services[professionalID] {
		if svc.Active {
			out = append(out, svc)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListActiveAppointments(_ context.Context, professionalID uuid.UUID) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeAppointmentsLocked(professionalID), nil
}

func (s *MemoryStore) activeAppointmentsLocked(professionalID uuid.UUID) []Appointment {
	var out []Appointment
	for _, a := range s.appointments {
		if a.ProfessionalID == professionalID && a.Status.Active() {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out
}

// CreateAppointment mirrors the Postgres exclusion constraint: the overlap
// check and the insert happen under one lock.
func (s *MemoryStore) CreateAppointment(_ context.Context, appt *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.professionals[appt.ProfessionalID]; !ok {
		return ErrNotFound
	}
	if appt.Status == "" {
		appt.Status = StatusScheduled
	}
	if appt.Status.Active() {
		busy := BusyIntervals(s.activeAppointmentsLocked(appt.ProfessionalID))
		if !scheduling.SlotAvailable(appt.Interval(), busy) {
			return ErrSlotTaken
		}
	}
	appt.ID = uuid.New()
	appt.CreatedAt = s.now()
	cp := *appt
	s.appointments[appt.ID] = &cp
	return nil
}
