package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Vuuar/rescall/internal/assistant"
	"github.com/Vuuar/rescall/internal/messaging"
	"github.com/Vuuar/rescall/internal/store"
	"github.com/Vuuar/rescall/pkg/logging"
)

// process runs steps 3 to 11 of the pipeline. Each step commits on its own;
// a failure leaves earlier writes in place. The returned status is only
// meaningful with a non-nil error.
func (h *Handler) process(ctx context.Context, req *request) (int, error) {
	s := h.deps.Store

	pro, err := s.ProfessionalByPhone(ctx, req.to)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return http.StatusNotFound, fmt.Errorf("professional for %s: %w", logging.RedactPhone(req.to), err)
		}
		return http.StatusInternalServerError, fmt.Errorf("resolve professional: %w", err)
	}
	req.logger = req.logger.With("professional_id", pro.ID)
	req.span.SetAttributes(attribute.String("rescall.professional_id", pro.ID.String()))

	settings, err := s.SettingsFor(ctx, pro.ID)
	if err != nil {
		if errors.Is(err, store.ErrSettingsNotFound) || errors.Is(err, store.ErrNotFound) {
			return http.StatusNotFound, fmt.Errorf("settings: %w", err)
		}
		return http.StatusInternalServerError, fmt.Errorf("load settings: %w", err)
	}

	conv, created, err := s.FindOrCreateActiveConversation(ctx, pro.ID, req.from)
	if err != nil {
		return http.StatusInternalServerError, fmt.Errorf("resolve conversation: %w", err)
	}
	req.logger = req.logger.With("conversation_id", conv.ID)
	if created {
		req.logger.Info("started conversation")
	}

	inbound, err := h.ingest(ctx, req, *settings, conv)
	if err != nil {
		return http.StatusInternalServerError, err
	}
	req.persisted = true

	if !settings.AssistantEnabled {
		req.outcome = outcomeRecorded
		req.logger.Info("assistant disabled, message recorded without reply")
		return http.StatusOK, nil
	}

	history, err := s.ListMessages(ctx, pro.ID, conv.ID)
	if err != nil {
		return http.StatusInternalServerError, fmt.Errorf("load history: %w", err)
	}
	availability, err := s.ListAvailability(ctx, pro.ID)
	if err != nil {
		return http.StatusInternalServerError, fmt.Errorf("load availability: %w", err)
	}
	services, err := s.ListActiveServices(ctx, pro.ID)
	if err != nil {
		return http.StatusInternalServerError, fmt.Errorf("load services: %w", err)
	}
	appointments, err := s.ListActiveAppointments(ctx, pro.ID)
	if err != nil {
		return http.StatusInternalServerError, fmt.Errorf("load appointments: %w", err)
	}

	now := h.deps.Now().In(settings.Location())
	reply := h.deps.Generator.Generate(ctx, assistant.ReplyInput{
		Message:      inbound.Content,
		Settings:     *settings,
		Availability: availability,
		Appointments: appointments,
		Services:     services,
		History:      priorTurns(history, inbound.ID),
		Now:          now,
	})
	if reply.Fallback {
		h.deps.Metrics.ObserveDegraded("reply")
	}

	answer := &store.Message{
		ConversationID: conv.ID,
		ProfessionalID: pro.ID,
		Content:        reply.Text,
		FromClient:     false,
		Type:           store.MessageText,
	}
	if err := s.InsertMessage(ctx, answer); err != nil {
		return http.StatusInternalServerError, fmt.Errorf("persist reply: %w", err)
	}

	transcript := make([]string, 0, len(history)+2)
	for _, m := range history {
		transcript = append(transcript, m.Content)
	}
	if !containsMessage(history, inbound.ID) {
		transcript = append(transcript, inbound.Content)
	}
	transcript = append(transcript, answer.Content)

	extraction := h.deps.Extractor.Extract(ctx, transcript, now)
	if extraction.Err != nil {
		h.deps.Metrics.ObserveDegraded("extraction")
	}
	details := extraction.Details

	if conv.ClientName == "" && details.ClientName != "" {
		if err := s.SetConversationClientName(ctx, pro.ID, conv.ID, details.ClientName); err != nil {
			return http.StatusInternalServerError, fmt.Errorf("set client name: %w", err)
		}
		conv.ClientName = details.ClientName
	}

	if err := h.book(ctx, req, bookingInput{
		pro:          *pro,
		settings:     *settings,
		conv:         conv,
		details:      details,
		services:     services,
		availability: availability,
		appointments: appointments,
		now:          now,
	}); err != nil {
		return http.StatusInternalServerError, err
	}

	if err := h.dispatch(ctx, req, pro, reply.Text); err != nil {
		return http.StatusInternalServerError, err
	}
	req.outcome = outcomeReplied
	return http.StatusOK, nil
}

// ingest stores the inbound message, transcribing voice notes when enabled.
func (h *Handler) ingest(ctx context.Context, req *request, settings store.Settings, conv *store.Conversation) (*store.Message, error) {
	in := req.inbound
	msg := &store.Message{
		ConversationID: conv.ID,
		ProfessionalID: conv.ProfessionalID,
		FromClient:     true,
		Type:           req.msgType,
	}
	parts := []string{}
	if body := strings.TrimSpace(in.Body); body != "" {
		parts = append(parts, body)
	}

	if req.msgType == store.MessageVoice {
		msg.MediaRef = in.MediaURL
		voiceText := assistant.VoicePlaceholder(settings.Language, false)
		if settings.VoiceTranscriptionEnabled && h.deps.Transcriber != nil {
			res := h.deps.Transcriber.Transcribe(ctx, in.MediaURL)
			if res.OK() {
				voiceText = res.Text
				msg.VoiceTranscript = res.Text
			} else {
				voiceText = assistant.VoicePlaceholder(settings.Language, true)
				h.deps.Metrics.ObserveDegraded("transcription")
				req.logger.Warn("voice note not transcribed, using placeholder", "error", res.Err)
			}
			if res.Media != nil && h.deps.Archive != nil {
				ref, err := h.deps.Archive.Store(ctx, conv.ProfessionalID, conv.ID, res.Media, h.deps.Now())
				switch {
				case err != nil:
					h.deps.Metrics.ObserveDegraded("media_archive")
					req.logger.Warn("voice note archive failed", "error", err)
				case ref != "":
					msg.MediaRef = ref
				}
			}
		}
		parts = append(parts, voiceText)
	}
	msg.Content = strings.Join(parts, "\n")

	if err := h.deps.Store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist inbound message: %w", err)
	}
	return msg, nil
}

func (h *Handler) dispatch(ctx context.Context, req *request, pro *store.Professional, body string) error {
	ctx, cancel := context.WithTimeout(ctx, h.deps.DispatchTimeout)
	defer cancel()

	res, err := h.deps.Sender.Send(ctx, messaging.OutboundMessage{
		ProfessionalID: pro.ID.String(),
		From:           pro.Phone,
		To:             req.from,
		Body:           body,
	})
	if err != nil {
		h.deps.Metrics.ObserveOutbound("failed")
		return fmt.Errorf("dispatch reply: %w", err)
	}
	status := res.Status
	if status == "" {
		status = "sent"
	}
	h.deps.Metrics.ObserveOutbound(status)
	req.logger.Info("reply dispatched", "provider_message_id", res.ProviderMessageID)
	return nil
}

// priorTurns drops the message being answered from the history.
func priorTurns(history []store.Message, current uuid.UUID) []store.Message {
	out := make([]store.Message, 0, len(history))
	for _, m := range history {
		if m.ID != current {
			out = append(out, m)
		}
	}
	return out
}

func containsMessage(history []store.Message, id uuid.UUID) bool {
	for _, m := range history {
		if m.ID == id {
			return true
		}
	}
	return false
}
