// Package notification delivers inbox notifications to their recipients over
// the live stream and email.
package notification

import (
	"fmt"
	"strings"
)

// Template IDs used by the appointment and review services.
const (
	TplAppointmentRequested   = "appointment-requested"
	TplAppointmentPending     = "appointment-pending"
	TplAppointmentConfirmed   = "appointment-confirmed"
	TplAppointmentCompleted   = "appointment-completed"
	TplAppointmentCancelled   = "appointment-cancelled"
	TplAppointmentRescheduled = "appointment-rescheduled"
	TplAppointmentReminder    = "appointment-reminder"
	TplReviewReceived         = "review-received"
)

// Template is a title/body pair with {{key}} placeholders.
type Template struct {
	ID    string
	Title string
	Body  string
}

// TemplateEngine renders the built-in templates. It is read-only after
// construction and safe for concurrent use.
type TemplateEngine struct {
	templates map[string]Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	for _, t := range builtIn {
		e.templates[t.ID] = t
	}
	return e
}

var builtIn = []Template{
	{
		ID:    TplAppointmentRequested,
		Title: "New appointment request",
		Body:  "A patient requested an appointment on {{date}}. Reason: {{reason}}",
	},
	{
		ID:    TplAppointmentPending,
		Title: "Appointment pending",
		Body:  "Your appointment on {{date}} is awaiting confirmation.",
	},
	{
		ID:    TplAppointmentConfirmed,
		Title: "Appointment confirmed",
		Body:  "Your appointment on {{date}} has been confirmed.",
	},
	{
		ID:    TplAppointmentCompleted,
		Title: "Appointment completed",
		Body:  "Your appointment on {{date}} is complete. You can now leave a review.",
	},
	{
		ID:    TplAppointmentCancelled,
		Title: "Appointment cancelled",
		Body:  "Your appointment on {{date}} has been cancelled.",
	},
	{
		ID:    TplAppointmentRescheduled,
		Title: "Appointment rescheduled",
		Body:  "Your appointment on {{date}} has been rescheduled.",
	},
	{
		ID:    TplAppointmentReminder,
		Title: "Appointment reminder",
		Body:  "Reminder: you have an appointment on {{date}}.",
	},
	{
		ID:    TplReviewReceived,
		Title: "New review received",
		Body:  "A patient rated your consultation {{rating}}/5.",
	},
}

// Render fills the template's placeholders from data. Placeholders with no
// matching key are left as-is.
func (e *TemplateEngine) Render(id string, data map[string]string) (title, body string, err error) {
	t, ok := e.templates[id]
	if !ok {
		return "", "", fmt.Errorf("template %q not found", id)
	}

	title, body = t.Title, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		title = strings.ReplaceAll(title, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return title, body, nil
}
