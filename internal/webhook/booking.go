package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Vuuar/rescall/internal/assistant"
	"github.com/Vuuar/rescall/internal/messaging"
	"github.com/Vuuar/rescall/internal/scheduling"
	"github.com/Vuuar/rescall/internal/store"
)

type bookingInput struct {
	pro          store.Professional
	settings     store.Settings
	conv         *store.Conversation
	details      assistant.Details
	services     []store.Service
	availability []store.AvailabilityRule
	appointments []store.Appointment
	now          time.Time
}

// Booking results, also used as metric labels.
const (
	bookingBooked         = "booked"
	bookingUnknownService = "unknown_service"
	bookingInvalidSlot    = "invalid_slot"
	bookingPastSlot       = "past_slot"
	bookingOutsideHours   = "outside_hours"
	bookingSlotTaken      = "slot_taken"
)

// book creates an appointment when the extracted details are complete and
// the slot is free. Every refusal is silent; only persistence errors are
// returned.
func (h *Handler) book(ctx context.Context, req *request, in bookingInput) error {
	if !in.details.Bookable() {
		return nil
	}
	ctx, span := tracer.Start(ctx, "webhook.book")
	defer span.End()

	result, appt, err := h.tryBook(ctx, in)
	if err != nil {
		span.RecordError(err)
		return err
	}
	h.deps.Metrics.ObserveBooking(result)
	if result != bookingBooked {
		req.logger.Info("no appointment created", "reason", result,
			"service", in.details.ServiceType, "date", in.details.Date, "time", in.details.Time)
		return nil
	}

	req.logger.Info("appointment booked", "appointment_id", appt.ID, "start_at", appt.StartAt)
	if h.deps.Notifier != nil {
		if err := h.deps.Notifier.NotifyBooking(ctx, in.settings, in.pro, *appt); err != nil {
			h.deps.Metrics.ObserveDegraded("notification")
			req.logger.Warn("booking notification failed", "error", err)
		}
	}
	return nil
}

func (h *Handler) tryBook(ctx context.Context, in bookingInput) (string, *store.Appointment, error) {
	svc, ok := store.FindServiceByName(in.services, in.details.ServiceType)
	if !ok {
		return bookingUnknownService, nil, nil
	}
	loc := in.settings.Location()
	slot, err := scheduling.ParseSlot(in.details.Date, in.details.Time, svc.Duration(), loc)
	if err != nil {
		return bookingInvalidSlot, nil, nil
	}
	if slot.Start.Before(in.now) {
		return bookingPastSlot, nil, nil
	}
	if in.settings.EnforceWorkingHours &&
		!scheduling.WithinWorkingHours(slot, store.DayWindows(in.availability), loc) {
		return bookingOutsideHours, nil, nil
	}
	if !scheduling.SlotAvailable(slot, store.BusyIntervals(in.appointments)) {
		return bookingSlotTaken, nil, nil
	}

	// The extracted phone is a phone number; the sender's WhatsApp number
	// is used when none was stated.
	phone := messaging.NormalizePhone(in.details.ClientPhone)
	if phone == "" {
		phone = in.conv.ClientPhone
	}
	convID := in.conv.ID
	svcID := svc.ID
	appt := &store.Appointment{
		ProfessionalID: in.pro.ID,
		ConversationID: &convID,
		ServiceID:      &svcID,
		ServiceType:    svc.Name,
		ClientName:     in.details.ClientName,
		ClientPhone:    phone,
		StartAt:        slot.Start,
		EndAt:          slot.End,
		Status:         store.StatusScheduled,
		Notes:          in.details.Notes,
	}
	if err := h.deps.Store.CreateAppointment(ctx, appt); err != nil {
		if errors.Is(err, store.ErrSlotTaken) {
			return bookingSlotTaken, nil, nil
		}
		return "", nil, fmt.Errorf("create appointment: %w", err)
	}
	// A returning client may book again; the conversation points at the newest appointment.
	if err := h.deps.Store.LinkConversationAppointment(ctx, in.pro.ID, in.conv.ID, appt.ID); err != nil {
		return "", nil, fmt.Errorf("link appointment: %w", err)
	}
	id := appt.ID
	in.conv.AppointmentID = &id
	return bookingBooked, appt, nil
}
