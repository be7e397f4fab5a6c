package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var storeTracer = otel.Tracer("rescall.internal.store")

// PgxPool is the subset of pgxpool.Pool used by PostgresStore.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists the booking pipeline in Postgres.
type PostgresStore struct {
	pool PgxPool
}

// NewPostgresStore wraps a pgx pool.
func NewPostgresStore(pool PgxPool) *PostgresStore {
	if pool == nil {
		panic("store: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

const (
	pgCodeExclusionViolation = "23P01"
	pgCodeUniqueViolation    = "23505"
)

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func startSpan(ctx context.Context, name string, professionalID uuid.UUID) (context.Context, trace.Span) {
	ctx, span := storeTracer.Start(ctx, name)
	if professionalID != uuid.Nil {
		span.SetAttributes(attribute.String("rescall.professional_id", professionalID.String()))
	}
	return ctx, span
}

func (s *PostgresStore) ProfessionalByPhone(ctx context.Context, phone string) (*Professional, error) {
	ctx, span := startSpan(ctx, "store.professional_by_phone", uuid.Nil)
	defer span.End()

	query := `
		SELECT id, name, business_name, whatsapp_phone, email, created_at
		FROM professionals
		WHERE whatsapp_phone = $1
		LIMIT 1
	`
	var p Professional
	if err := s.pool.QueryRow(ctx, query, phone).Scan(
		&p.ID, &p.Name, &p.BusinessName, &p.Phone, &p.Email, &p.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("store: select professional: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) SettingsFor(ctx context.Context, professionalID uuid.UUID) (*Settings, error) {
	ctx, span := startSpan(ctx, "store.settings_for", professionalID)
	defer span.End()

	query := `
		SELECT professional_id, assistant_enabled, voice_transcription_enabled,
			language, timezone, business_name, welcome_message,
			notify_on_booking, notification_email, enforce_working_hours
		FROM professional_settings
		WHERE professional_id = $1
	`
	var st Settings
	if err := s.pool.QueryRow(ctx, query, professionalID).Scan(
		&st.ProfessionalID,
		&st.AssistantEnabled,
		&st.VoiceTranscriptionEnabled,
		&st.Language,
		&st.Timezone,
		&st.BusinessName,
		&st.WelcomeMessage,
		&st.NotifyOnBooking,
		&st.NotificationEmail,
		&st.EnforceWorkingHours,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("store: select settings: %w", err)
	}
	if err := st.Normalize(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &st, nil
}

// FindOrCreateActiveConversation relies on the partial unique index
// conversations_one_active (professional_id, client_phone) WHERE status = 'active'.
func (s *PostgresStore) FindOrCreateActiveConversation(ctx context.Context, professionalID uuid.UUID, clientPhone string) (*Conversation, bool, error) {
	ctx, span := startSpan(ctx, "store.find_or_create_conversation", professionalID)
	defer span.End()

	query := `
		INSERT INTO conversations (id, professional_id, client_phone, status)
		VALUES ($1, $2, $3, 'active')
		ON CONFLICT (professional_id, client_phone) WHERE status = 'active'
		DO UPDATE SET updated_at = conversations.updated_at
		RETURNING id, professional_id, client_phone, COALESCE(client_name, ''),
			status, appointment_id, created_at, updated_at, (xmax = 0) AS inserted
	`
	var (
		conv          Conversation
		status        string
		appointmentID pgtype.UUID
		inserted      bool
	)
	if err := s.pool.QueryRow(ctx, query, uuid.New(), professionalID, clientPhone).Scan(
		&conv.ID,
		&conv.ProfessionalID,
		&conv.ClientPhone,
		&conv.ClientName,
		&status,
		&appointmentID,
		&conv.CreatedAt,
		&conv.UpdatedAt,
		&inserted,
	); err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("store: find or create conversation: %w", err)
	}
	conv.Status = ConversationStatus(status)
	conv.AppointmentID = fromPGUUID(appointmentID)
	span.SetAttributes(attribute.Bool("rescall.conversation_created", inserted))
	return &conv, inserted, nil
}

func (s *PostgresStore) SetConversationClientName(ctx context.Context, professionalID, conversationID uuid.UUID, name string) error {
	ctx, span := startSpan(ctx, "store.set_client_name", professionalID)
	defer span.End()

	query := `
		UPDATE conversations
		SET client_name = $3, updated_at = now()
		WHERE id = $1 AND professional_id = $2
	`
	tag, err := s.pool.Exec(ctx, query, conversationID, professionalID, name)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("store: update client name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) LinkConversationAppointment(ctx context.Context, professionalID, conversationID, appointmentID uuid.UUID) error {
	ctx, span := startSpan(ctx, "store.link_appointment", professionalID)
	defer span.End()

	query := `
		UPDATE conversations
		SET appointment_id = $3, updated_at = now()
		WHERE id = $1 AND professional_id = $2
	`
	tag, err := s.pool.Exec(ctx, query, conversationID, professionalID, appointmentID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("store: link appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, msg *Message) error {
	ctx, span := startSpan(ctx, "store.insert_message", msg.ProfessionalID)
	defer span.End()

	query := `
		WITH conv AS (
			UPDATE conversations SET updated_at = now()
			WHERE id = $2 AND professional_id = $3
			RETURNING id
		)
		INSERT INTO messages (id, conversation_id, professional_id, content, from_client, type, voice_transcript, media_ref)
		SELECT $1, conv.id, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, '')
		FROM conv
		RETURNING created_at
	`
	id := uuid.New()
	var createdAt time.Time
	if err := s.pool.QueryRow(ctx, query,
		id,
		msg.ConversationID,
		msg.ProfessionalID,
		msg.Content,
		msg.FromClient,
		string(msg.Type),
		msg.VoiceTranscript,
		msg.MediaRef,
	).Scan(&createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		span.RecordError(err)
		return fmt.Errorf("store: insert message: %w", err)
	}
	msg.ID = id
	msg.CreatedAt = createdAt
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, professionalID, conversationID uuid.UUID) ([]Message, error) {
	ctx, span := startSpan(ctx, "store.list_messages", professionalID)
	defer span.End()

	query := `
		SELECT id, conversation_id, professional_id, content, from_client, type,
			COALESCE(voice_transcript, ''), COALESCE(media_ref, ''), created_at
		FROM messages
		WHERE conversation_id = $1 AND professional_id = $2
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.pool.Query(ctx, query, conversationID, professionalID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m       Message
			msgType string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.ProfessionalID, &m.Content, &m.FromClient, &msgType, &m.VoiceTranscript, &m.MediaRef, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		m.Type = MessageType(msgType)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store: iterate messages: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListAvailability(ctx context.Context, professionalID uuid.UUID) ([]AvailabilityRule, error) {
	ctx, span := startSpan(ctx, "store.list_availability", professionalID)
	defer span.End()

	query := `
		SELECT id, professional_id, weekday, COALESCE(open_time, ''), COALESCE(close_time, ''), closed
		FROM availability_rules
		WHERE professional_id = $1
		ORDER BY weekday ASC, open_time ASC
	`
	rows, err := s.pool.Query(ctx, query, professionalID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store: list availability: %w", err)
	}
	defer rows.Close()

	var out []AvailabilityRule
	for rows.Next() {
		var (
			r       AvailabilityRule
			weekday int
		)
		if err := rows.Scan(&r.ID, &r.ProfessionalID, &weekday, &r.OpenTime, &r.CloseTime, &r.Closed); err != nil {
			return nil, fmt.Errorf("store: scan availability: %w", err)
		}
		r.Weekday = time.Weekday(weekday)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate availability: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListActiveServices(ctx context.Context, professionalID uuid.UUID) ([]Service, error) {
	ctx, span := startSpan(ctx, "store.list_services", professionalID)
	defer span.End()

	query := `
		SELECT id, professional_id, name, duration_minutes, price_cents, active
		FROM services
		WHERE professional_id = $1 AND active
		ORDER BY name ASC
	`
	rows, err := s.pool.Query(ctx, query, professionalID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store: list services: %w", err)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var svc Service
		if err := rows.Scan(&svc.ID, &svc.ProfessionalID, &svc.Name, &svc.DurationMinutes, &svc.PriceCents, &svc.Active); err != nil {
			return nil, fmt.Errorf("store: scan service: %w", err)
		}
		out = append(out, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate services: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListActiveAppointments(ctx context.Context, professionalID uuid.UUID) ([]Appointment, error) {
	ctx, span := startSpan(ctx, "store.list_active_appointments", professionalID)
	defer span.End()

	query := `
		SELECT id, professional_id, conversation_id, service_id, service_type,
			client_name, client_phone, COALESCE(client_email, ''),
			start_at, end_at, status, COALESCE(notes, ''), created_at
		FROM appointments
		WHERE professional_id = $1 AND status = ANY($2)
		ORDER BY start_at ASC
	`
	rows, err := s.pool.Query(ctx, query, professionalID, activeStatusStrings())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store: list appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		var (
			a              Appointment
			conversationID pgtype.UUID
			serviceID      pgtype.UUID
			status         string
		)
		if err := rows.Scan(
			&a.ID, &a.ProfessionalID, &conversationID, &serviceID, &a.ServiceType,
			&a.ClientName, &a.ClientPhone, &a.ClientEmail,
			&a.StartAt, &a.EndAt, &status, &a.Notes, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan appointment: %w", err)
		}
		a.ConversationID = fromPGUUID(conversationID)
		a.ServiceID = fromPGUUID(serviceID)
		a.Status = AppointmentStatus(status)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store: iterate appointments: %w", err)
	}
	return out, nil
}

// CreateAppointment inserts the row; the appointments_no_overlap exclusion
// constraint rejects overlapping active appointments with SQLSTATE 23P01.
func (s *PostgresStore) CreateAppointment(ctx context.Context, appt *Appointment) error {
	ctx, span := startSpan(ctx, "store.create_appointment", appt.ProfessionalID)
	defer span.End()

	if appt.Status == "" {
		appt.Status = StatusScheduled
	}
	query := `
		INSERT INTO appointments (
			id, professional_id, conversation_id, service_id, service_type,
			client_name, client_phone, client_email, start_at, end_at, status, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, NULLIF($12, ''))
		RETURNING created_at
	`
	id := uuid.New()
	var createdAt time.Time
	if err := s.pool.QueryRow(ctx, query,
		id,
		appt.ProfessionalID,
		toPGUUID(appt.ConversationID),
		toPGUUID(appt.ServiceID),
		appt.ServiceType,
		appt.ClientName,
		appt.ClientPhone,
		appt.ClientEmail,
		appt.StartAt.UTC(),
		appt.EndAt.UTC(),
		string(appt.Status),
		appt.Notes,
	).Scan(&createdAt); err != nil {
		if isPgCode(err, pgCodeExclusionViolation) || isPgCode(err, pgCodeUniqueViolation) {
			return ErrSlotTaken
		}
		span.RecordError(err)
		return fmt.Errorf("store: insert appointment: %w", err)
	}
	appt.ID = id
	appt.CreatedAt = createdAt
	return nil
}

func activeStatusStrings() []string {
	out := make([]string, 0, len(ActiveStatuses))
	for _, s := range ActiveStatuses {
		out = append(out, string(s))
	}
	return out
}

func toPGUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil || *id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: [16]byte(*id), Valid: true}
}

func fromPGUUID(id pgtype.UUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	v := uuid.UUID(id.Bytes)
	return &v
}
