package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/Vuuar/rescall/internal/store"
	"github.com/Vuuar/rescall/pkg/logging"
)

// BookingNotifier emails a professional when the assistant books an appointment.
type BookingNotifier struct {
	sender EmailSender
	logger *logging.Logger
}

func NewBookingNotifier(sender EmailSender, logger *logging.Logger) *BookingNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingNotifier{sender: sender, logger: logger}
}

// NotifyBooking is a no-op unless the settings opt in and name a recipient.
func (n *BookingNotifier) NotifyBooking(ctx context.Context, settings store.Settings, pro store.Professional, appt store.Appointment) error {
	if n == nil || n.sender == nil || !settings.NotifyOnBooking {
		return nil
	}
	to := strings.TrimSpace(settings.NotificationEmail)
	if to == "" {
		to = strings.TrimSpace(pro.Email)
	}
	if to == "" {
		return nil
	}
	msg := BookingEmail(settings, appt)
	msg.To = to
	msg.ToName = pro.Name
	msg.Category = "booking"
	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: booking email: %w", err)
	}
	return nil
}

// BookingEmail renders the notification in the operator's language.
func BookingEmail(settings store.Settings, appt store.Appointment) EmailMessage {
	loc := settings.Location()
	start := appt.StartAt.In(loc)
	end := appt.EndAt.In(loc)
	phone := appt.ClientPhone
	if phone != "" {
		phone = "+" + phone
	}

	if settings.Language == "en" {
		return EmailMessage{
			Subject: fmt.Sprintf("New appointment: %s - %s", appt.ClientName, appt.ServiceType),
			Body: fmt.Sprintf("A new appointment was booked over WhatsApp.\n\nClient: %s\nPhone: %s\nService: %s\nDate: %s\nTime: %s - %s\nNotes: %s\n",
				appt.ClientName, phone, appt.ServiceType, start.Format("Monday 2 January 2006"), start.Format("15:04"), end.Format("15:04"), dash(appt.Notes)),
		}
	}
	return EmailMessage{
		Subject: fmt.Sprintf("Nouveau rendez-vous : %s - %s", appt.ClientName, appt.ServiceType),
		Body: fmt.Sprintf("Un nouveau rendez-vous a été pris sur WhatsApp.\n\nClient : %s\nTéléphone : %s\nPrestation : %s\nDate : %s\nHoraire : %s - %s\nNotes : %s\n",
			appt.ClientName, phone, appt.ServiceType, frenchDate(start.Weekday().String(), start.Day(), int(start.Month()), start.Year()), start.Format("15:04"), end.Format("15:04"), dash(appt.Notes)),
	}
}

var (
	frenchWeekdays = map[string]string{
		"Monday": "lundi", "Tuesday": "mardi", "Wednesday": "mercredi", "Thursday": "jeudi",
		"Friday": "vendredi", "Saturday": "samedi", "Sunday": "dimanche",
	}
	frenchMonths = [...]string{"", "janvier", "février", "mars", "avril", "mai", "juin",
		"juillet", "août", "septembre", "octobre", "novembre", "décembre"}
)

func frenchDate(weekday string, day, month, year int) string {
	return fmt.Sprintf("%s %d %s %d", frenchWeekdays[weekday], day, frenchMonths[month], year)
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
