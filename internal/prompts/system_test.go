package prompts

import (
	"strings"
	"testing"
	"time"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/appointments"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/tasks"
)

func TestAssistantSystemPrompt(t *testing.T) {
	now := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	result := AssistantSystemPrompt(now, tasks.Seed(), appointments.Seed())

	for _, want := range []string{
		"2024-03-12",
		"Dienstag",
		"task-1",
		"[x] Wartungsprotokoll Speicher Schneider ablegen",
		"Dachmaße prüfen (id: task-1-1)",
		"appt-1",
		"Familie Müller",
		"[completed]",
		"tel: 030 9876543",
		"search_products",
		"update_appointment_status",
	} {
		if !strings.Contains(result, want) {
			t.Errorf("prompt should contain %q", want)
		}
	}
	if strings.Contains(result, "%!") {
		t.Error("prompt has a formatting error")
	}
}

func TestAssistantSystemPrompt_Empty(t *testing.T) {
	result := AssistantSystemPrompt(time.Now(), nil, nil)
	if !strings.Contains(result, "(keine Aufgaben)") {
		t.Error("prompt should say there are no tasks")
	}
	if !strings.Contains(result, "(keine Termine)") {
		t.Error("prompt should say there are no appointments")
	}
}

func TestAssistantSystemPrompt_ReflectsChanges(t *testing.T) {
	now := time.Now()
	list := tasks.Seed()
	before := AssistantSystemPrompt(now, list, nil)
	list = append(list, tasks.Task{ID: "task-new", Text: "Gerüst abbauen", Priority: tasks.PriorityLow})
	after := AssistantSystemPrompt(now, list, nil)

	if strings.Contains(before, "task-new") {
		t.Error("first prompt should not know the new task")
	}
	if !strings.Contains(after, "Gerüst abbauen") {
		t.Error("rebuilt prompt should include the new task")
	}
}

func TestWithAgentInstructions(t *testing.T) {
	if got := WithAgentInstructions("  ", "base"); got != "base" {
		t.Errorf("blank instructions: got %q", got)
	}
	if got := WithAgentInstructions("Sei knapp.", "base"); got != "Sei knapp.\n\nbase" {
		t.Errorf("got %q", got)
	}
}
