package prompts

import (
	"fmt"
	"strings"
	"time"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/appointments"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/tasks"
)

// assistantTemplate is the system prompt for the craftsman assistant.
// Format verbs: (1) today's date, (2) weekday, (3) task list,
// (4) appointment list.
const assistantTemplate = `Du bist der digitale Assistent eines Solar-Handwerksbetriebs.
Du hilfst dem Handwerker, seine Aufgaben und Kundentermine zu verwalten,
und beantwortest Fragen zu Produkten aus dem Katalog.

Heute ist %[2]s, der %[1]s.

## Wann du Werkzeuge benutzt
- Neue Aufgabe → add_task (Priorität low, medium oder high; optional appointment_id)
- Aufgabe erledigt oder wieder offen → toggle_task_completion
- Aufgabe umformulieren oder neu priorisieren → update_task
- Neuer Kundentermin → add_appointment (Datum YYYY-MM-DD, Uhrzeit HH:MM)
- Termin erledigt oder abgesagt → update_appointment_status (Termine werden nie gelöscht)
- Fragen zu Produkten, Preisen oder Verfügbarkeit → search_products

Rechne relative Angaben wie "morgen" oder "nächsten Dienstag" ausgehend
vom heutigen Datum in ein konkretes Datum um. Verwende nur IDs aus den
Listen unten; rate keine IDs.

## Aktuelle Aufgaben
%[3]s

## Aktuelle Termine
%[4]s

## Regeln
- Antworte auf Deutsch, kurz und freundlich.
- Nach einer Aktion bestätige knapp, was du getan hast.
- Wenn ein Werkzeug einen Fehler meldet, erkläre ihn in einem Satz.
- Für Smalltalk brauchst du keine Werkzeuge.`

var weekdays = [...]string{"Sonntag", "Montag", "Dienstag", "Mittwoch", "Donnerstag", "Freitag", "Samstag"}

// AssistantSystemPrompt returns the system prompt for one chat request.
// It must be rebuilt per request so the model sees the current task and
// appointment lists.
func AssistantSystemPrompt(now time.Time, taskList []tasks.Task, apptList []appointments.Appointment) string {
	return fmt.Sprintf(assistantTemplate,
		now.Format(appointments.DateLayout),
		weekdays[now.Weekday()],
		formatTasks(taskList),
		formatAppointments(apptList),
	)
}

// WithAgentInstructions prefixes base with an agent's own instructions,
// if it has any.
func WithAgentInstructions(instructions, base string) string {
	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		return base
	}
	return instructions + "\n\n" + base
}

func formatTasks(list []tasks.Task) string {
	if len(list) == 0 {
		return "(keine Aufgaben)"
	}
	var sb strings.Builder
	for _, t := range list {
		box := " "
		if t.Completed {
			box = "x"
		}
		fmt.Fprintf(&sb, "- [%s] %s (id: %s, priority: %s", box, t.Text, t.ID, t.Priority)
		if t.AppointmentID != "" {
			fmt.Fprintf(&sb, ", appointment: %s", t.AppointmentID)
		}
		sb.WriteString(")\n")
		for _, s := range t.Subtasks {
			box := " "
			if s.Completed {
				box = "x"
			}
			fmt.Fprintf(&sb, "    - [%s] %s (id: %s)\n", box, s.Text, s.ID)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatAppointments(list []appointments.Appointment) string {
	if len(list) == 0 {
		return "(keine Termine)"
	}
	var sb strings.Builder
	for _, a := range list {
		fmt.Fprintf(&sb, "- %s %s: %s, %s [%s] (id: %s", a.Date, a.Time, a.CustomerName, a.Reason, a.Status, a.ID)
		if a.Phone != "" {
			fmt.Fprintf(&sb, ", tel: %s", a.Phone)
		}
		sb.WriteString(")\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
