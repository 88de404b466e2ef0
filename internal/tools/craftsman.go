package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/appointments"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/products"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/tasks"
)

// searchLimit caps the products returned by search_products.
const searchLimit = 10

// CraftsmanTools wires the six assistant tools to the registries they
// act on.
type CraftsmanTools struct {
	Tasks        *tasks.Registry
	Appointments *appointments.Registry
	Catalog      *products.Catalog
}

// Register adds search_products, add_task, toggle_task_completion,
// update_task, add_appointment and update_appointment_status to r.
func (c *CraftsmanTools) Register(r *Registry) {
	r.Register(&Tool{
		Name:        "search_products",
		Description: "Durchsucht den Produktkatalog (Module, Wechselrichter, Speicher, Wallboxen, Montage) nach Name, Kategorie oder Beschreibung.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Suchbegriff, z. B. \"Speicher\" oder \"Wallbox 11 kW\"",
				},
			},
			"required": []string{"query"},
		},
		Handler: c.handleSearchProducts,
	})

	r.Register(&Tool{
		Name:        "add_task",
		Description: "Legt eine neue Aufgabe an, optional mit Priorität und verknüpftem Termin.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{
					"type":        "string",
					"description": "Beschreibung der Aufgabe",
				},
				"priority": map[string]any{
					"type":        "string",
					"enum":        []string{"low", "medium", "high"},
					"description": "Priorität (Standard: medium)",
				},
				"appointment_id": map[string]any{
					"type":        "string",
					"description": "ID eines bestehenden Termins, auf den sich die Aufgabe bezieht",
				},
			},
			"required": []string{"text"},
		},
		Handler: c.handleAddTask,
	})

	r.Register(&Tool{
		Name:        "toggle_task_completion",
		Description: "Markiert eine Aufgabe als erledigt oder wieder offen.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id": map[string]any{
					"type":        "string",
					"description": "ID der Aufgabe",
				},
			},
			"required": []string{"task_id"},
		},
		Handler: c.handleToggleTask,
	})

	r.Register(&Tool{
		Name:        "update_task",
		Description: "Ändert Text und/oder Priorität einer bestehenden Aufgabe.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id": map[string]any{
					"type":        "string",
					"description": "ID der Aufgabe",
				},
				"text": map[string]any{
					"type":        "string",
					"description": "Neuer Text",
				},
				"priority": map[string]any{
					"type":        "string",
					"enum":        []string{"low", "medium", "high"},
					"description": "Neue Priorität",
				},
			},
			"required": []string{"task_id"},
		},
		Handler: c.handleUpdateTask,
	})

	r.Register(&Tool{
		Name:        "add_appointment",
		Description: "Vereinbart einen neuen Kundentermin.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"customer_name": map[string]any{
					"type":        "string",
					"description": "Name des Kunden",
				},
				"date": map[string]any{
					"type":        "string",
					"description": "Datum im Format YYYY-MM-DD",
				},
				"time": map[string]any{
					"type":        "string",
					"description": "Uhrzeit im Format HH:MM",
				},
				"reason": map[string]any{
					"type":        "string",
					"description": "Anlass des Termins",
				},
				"phone": map[string]any{
					"type":        "string",
					"description": "Telefonnummer des Kunden",
				},
			},
			"required": []string{"customer_name", "date", "time", "reason"},
		},
		Handler: c.handleAddAppointment,
	})

	r.Register(&Tool{
		Name:        "update_appointment_status",
		Description: "Setzt den Status eines Termins auf scheduled, completed oder cancelled. Termine werden nie gelöscht.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"appointment_id": map[string]any{
					"type":        "string",
					"description": "ID des Termins",
				},
				"status": map[string]any{
					"type":        "string",
					"enum":        []string{"scheduled", "completed", "cancelled"},
					"description": "Neuer Status",
				},
			},
			"required": []string{"appointment_id", "status"},
		},
		Handler: c.handleUpdateAppointmentStatus,
	})
}

func (c *CraftsmanTools) handleSearchProducts(_ context.Context, args map[string]any) (string, error) {
	query := stringArg(args, "query")
	if query == "" {
		return Failure("query is required"), nil
	}
	found := c.Catalog.Search(query, searchLimit)
	if len(found) == 0 {
		return Result(true, fmt.Sprintf("Keine Produkte zu %q gefunden.", query), map[string]any{"products": found}), nil
	}
	return Result(true, fmt.Sprintf("%d Produkte gefunden.", len(found)), map[string]any{"products": found}), nil
}

func (c *CraftsmanTools) handleAddTask(_ context.Context, args map[string]any) (string, error) {
	text := stringArg(args, "text")
	if text == "" {
		return Failure("text is required"), nil
	}
	prio, err := tasks.ParsePriority(stringArg(args, "priority"))
	if err != nil {
		return Failure(err.Error()), nil
	}
	apptID := stringArg(args, "appointment_id")
	if apptID != "" {
		if _, err := c.Appointments.Get(apptID); err != nil {
			return Failure(fmt.Sprintf("Termin %s nicht gefunden.", apptID)), nil
		}
	}

	task, err := c.Tasks.Add(text, prio, apptID)
	if err != nil {
		return "", err
	}
	return Result(true, fmt.Sprintf("Aufgabe %q angelegt.", task.Text), map[string]any{"task": task}), nil
}

func (c *CraftsmanTools) handleToggleTask(_ context.Context, args map[string]any) (string, error) {
	id := stringArg(args, "task_id")
	if id == "" {
		return Failure("task_id is required"), nil
	}
	task, err := c.Tasks.Toggle(id)
	if errors.Is(err, tasks.ErrNotFound) {
		return Failure(fmt.Sprintf("Aufgabe %s nicht gefunden.", id)), nil
	}
	if err != nil {
		return "", err
	}
	state := "offen"
	if task.Completed {
		state = "erledigt"
	}
	return Result(true, fmt.Sprintf("Aufgabe %q ist jetzt %s.", task.Text, state), map[string]any{"task": task}), nil
}

func (c *CraftsmanTools) handleUpdateTask(_ context.Context, args map[string]any) (string, error) {
	id := stringArg(args, "task_id")
	if id == "" {
		return Failure("task_id is required"), nil
	}

	var patch tasks.Patch
	if text := stringArg(args, "text"); text != "" {
		patch.Text = &text
	}
	if p := stringArg(args, "priority"); p != "" {
		prio, err := tasks.ParsePriority(p)
		if err != nil {
			return Failure(err.Error()), nil
		}
		patch.Priority = &prio
	}
	if patch.Text == nil && patch.Priority == nil {
		return Failure("nothing to update: pass text and/or priority"), nil
	}

	task, err := c.Tasks.Update(id, patch)
	if errors.Is(err, tasks.ErrNotFound) {
		return Failure(fmt.Sprintf("Aufgabe %s nicht gefunden.", id)), nil
	}
	if err != nil {
		return Failure(err.Error()), nil
	}
	return Result(true, fmt.Sprintf("Aufgabe %q aktualisiert.", task.Text), map[string]any{"task": task}), nil
}

func (c *CraftsmanTools) handleAddAppointment(_ context.Context, args map[string]any) (string, error) {
	appt, err := c.Appointments.Add(appointments.Appointment{
		CustomerName: stringArg(args, "customer_name"),
		Date:         stringArg(args, "date"),
		Time:         stringArg(args, "time"),
		Reason:       stringArg(args, "reason"),
		Phone:        stringArg(args, "phone"),
	})
	if err != nil {
		return Failure(err.Error()), nil
	}
	return Result(true,
		fmt.Sprintf("Termin für %s am %s um %s angelegt.", appt.CustomerName, appt.Date, appt.Time),
		map[string]any{"appointment": appt}), nil
}

func (c *CraftsmanTools) handleUpdateAppointmentStatus(_ context.Context, args map[string]any) (string, error) {
	id := stringArg(args, "appointment_id")
	if id == "" {
		return Failure("appointment_id is required"), nil
	}
	status, err := appointments.ParseStatus(stringArg(args, "status"))
	if err != nil {
		return Failure(err.Error()), nil
	}
	appt, err := c.Appointments.SetStatus(id, status)
	if errors.Is(err, appointments.ErrNotFound) {
		return Failure(fmt.Sprintf("Termin %s nicht gefunden.", id)), nil
	}
	if err != nil {
		return "", err
	}
	return Result(true, fmt.Sprintf("Termin %s ist jetzt %s.", appt.ID, appt.Status), map[string]any{"appointment": appt}), nil
}
