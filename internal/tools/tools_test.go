package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/appointments"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/events"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/products"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/storage"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/tasks"
)

type harness struct {
	reg   *Registry
	tasks *tasks.Registry
	appts *appointments.Registry
	bus   *events.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	docs := storage.NewMemory()
	h := &harness{
		tasks: tasks.NewRegistry(docs, logger),
		appts: appointments.NewRegistry(docs, logger),
		bus:   events.New(),
	}
	h.reg = NewRegistry(h.bus, nil, logger)
	(&CraftsmanTools{Tasks: h.tasks, Appointments: h.appts, Catalog: products.Default()}).Register(h.reg)
	return h
}

func (h *harness) exec(t *testing.T, name, args string) map[string]any {
	t.Helper()
	out, err := h.reg.Execute(context.Background(), name, args)
	if err != nil {
		t.Fatalf("Execute(%s) error: %v", name, err)
	}
	var res map[string]any
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("Execute(%s) returned invalid JSON %q: %v", name, out, err)
	}
	if _, ok := res["message"].(string); !ok {
		t.Fatalf("Execute(%s) result has no message: %s", name, out)
	}
	return res
}

func TestRegistry_ListsAllCraftsmanTools(t *testing.T) {
	h := newHarness(t)
	want := []string{
		"add_appointment",
		"add_task",
		"search_products",
		"toggle_task_completion",
		"update_appointment_status",
		"update_task",
	}
	got := h.reg.List()
	if len(got) != len(want) {
		t.Fatalf("List() returned %d tools, want %d", len(got), len(want))
	}
	for i, tool := range got {
		if tool.Name != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, tool.Name, want[i])
		}
		if tool.Parameters["type"] != "object" {
			t.Errorf("%s parameters type = %v, want object", tool.Name, tool.Parameters["type"])
		}
	}
}

func TestExecute_UnknownTool(t *testing.T) {
	h := newHarness(t)
	_, err := h.reg.Execute(context.Background(), "delete_everything", "{}")
	var unavailable *ErrToolUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("Execute(unknown) error = %v, want ErrToolUnavailable", err)
	}
	if unavailable.ToolName != "delete_everything" {
		t.Errorf("ToolName = %q", unavailable.ToolName)
	}
}

func TestExecute_InvalidArguments(t *testing.T) {
	h := newHarness(t)
	res := h.exec(t, "add_task", "{not json")
	if res["success"] != false {
		t.Errorf("success = %v, want false", res["success"])
	}
	if got := len(h.tasks.List()); got != 3 {
		t.Errorf("task count = %d, want 3", got)
	}
}

func TestExecute_PublishesEvents(t *testing.T) {
	h := newHarness(t)
	ch := h.bus.Subscribe(8)
	defer h.bus.Unsubscribe(ch)

	h.exec(t, "search_products", `{"query":"wallbox"}`)

	var kinds []string
	for len(ch) > 0 {
		e := <-ch
		kinds = append(kinds, e.Kind)
	}
	if len(kinds) != 2 || kinds[0] != events.KindToolCall || kinds[1] != events.KindToolDone {
		t.Errorf("events = %v, want [%s %s]", kinds, events.KindToolCall, events.KindToolDone)
	}
}

func TestSearchProducts(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		query   string
		success bool
		count   int
	}{
		{"wallbox", true, 1},
		{"SPEICHER", true, 2},
		{"solarmodul photovoltaik", true, 2},
		{"wärmepumpe", true, 0},
		{"", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			args, _ := json.Marshal(map[string]string{"query": tt.query})
			res := h.exec(t, "search_products", string(args))
			if res["success"] != tt.success {
				t.Fatalf("success = %v, want %v", res["success"], tt.success)
			}
			if !tt.success {
				return
			}
			list, _ := res["products"].([]any)
			if len(list) != tt.count {
				t.Errorf("products = %d, want %d", len(list), tt.count)
			}
		})
	}
}

func TestAddTask(t *testing.T) {
	h := newHarness(t)

	res := h.exec(t, "add_task", `{"text":"Kabelkanal bestellen","priority":"high","appointment_id":"appt-1"}`)
	if res["success"] != true {
		t.Fatalf("add_task failed: %v", res["message"])
	}
	list := h.tasks.List()
	if len(list) != 4 {
		t.Fatalf("task count = %d, want 4", len(list))
	}
	added := list[3]
	if added.Text != "Kabelkanal bestellen" || added.Priority != tasks.PriorityHigh || added.AppointmentID != "appt-1" {
		t.Errorf("added task = %+v", added)
	}

	res = h.exec(t, "add_task", `{"text":"Ohne Priorität"}`)
	if res["success"] != true {
		t.Fatalf("add_task without priority failed: %v", res["message"])
	}
	if got := h.tasks.List()[4].Priority; got != tasks.PriorityMedium {
		t.Errorf("default priority = %q, want medium", got)
	}
}

func TestAddTask_Rejections(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{"missing text", `{}`},
		{"blank text", `{"text":"   "}`},
		{"bad priority", `{"text":"x","priority":"urgent"}`},
		{"unknown appointment", `{"text":"x","appointment_id":"appt-404"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			res := h.exec(t, "add_task", tt.args)
			if res["success"] != false {
				t.Errorf("success = %v, want false", res["success"])
			}
			if got := len(h.tasks.List()); got != 3 {
				t.Errorf("task count = %d, want 3", got)
			}
		})
	}
}

func TestToggleTaskCompletion(t *testing.T) {
	h := newHarness(t)

	res := h.exec(t, "toggle_task_completion", `{"task_id":"task-2"}`)
	if res["success"] != true {
		t.Fatalf("toggle failed: %v", res["message"])
	}
	task, _ := h.tasks.Get("task-2")
	if !task.Completed {
		t.Error("task-2 should be completed")
	}

	h.exec(t, "toggle_task_completion", `{"task_id":"task-2"}`)
	task, _ = h.tasks.Get("task-2")
	if task.Completed {
		t.Error("second toggle should reopen task-2")
	}

	res = h.exec(t, "toggle_task_completion", `{"task_id":"task-99"}`)
	if res["success"] != false {
		t.Error("toggling an unknown task should fail")
	}
}

func TestUpdateTask(t *testing.T) {
	h := newHarness(t)

	res := h.exec(t, "update_task", `{"task_id":"task-2","priority":"high"}`)
	if res["success"] != true {
		t.Fatalf("update_task failed: %v", res["message"])
	}
	task, _ := h.tasks.Get("task-2")
	if task.Priority != tasks.PriorityHigh {
		t.Errorf("priority = %q, want high", task.Priority)
	}
	if task.Text != "Wechselrichter bei Großhändler bestellen" {
		t.Errorf("text changed unexpectedly: %q", task.Text)
	}

	for _, args := range []string{
		`{"task_id":"task-2"}`,
		`{"task_id":"task-99","text":"x"}`,
		`{"text":"x"}`,
		`{"task_id":"task-2","priority":"later"}`,
	} {
		if res := h.exec(t, "update_task", args); res["success"] != false {
			t.Errorf("update_task(%s) succeeded, want failure", args)
		}
	}
}

func TestAddAppointment(t *testing.T) {
	h := newHarness(t)

	res := h.exec(t, "add_appointment",
		`{"customer_name":"Frau Weber","date":"2024-02-01","time":"09:30","reason":"Beratung Speicher","phone":"0151 2222"}`)
	if res["success"] != true {
		t.Fatalf("add_appointment failed: %v", res["message"])
	}
	list := h.appts.List()
	if len(list) != 3 {
		t.Fatalf("appointment count = %d, want 3", len(list))
	}
	got := list[2]
	if got.Status != appointments.StatusScheduled || got.CustomerName != "Frau Weber" || got.Phone != "0151 2222" {
		t.Errorf("added appointment = %+v", got)
	}

	for _, args := range []string{
		`{"date":"2024-02-01","time":"09:30","reason":"x"}`,
		`{"customer_name":"A","date":"01.02.2024","time":"09:30","reason":"x"}`,
		`{"customer_name":"A","date":"2024-02-01","time":"9 Uhr","reason":"x"}`,
	} {
		if res := h.exec(t, "add_appointment", args); res["success"] != false {
			t.Errorf("add_appointment(%s) succeeded, want failure", args)
		}
	}
}

func TestUpdateAppointmentStatus(t *testing.T) {
	h := newHarness(t)

	res := h.exec(t, "update_appointment_status", `{"appointment_id":"appt-1","status":"cancelled"}`)
	if res["success"] != true {
		t.Fatalf("update_appointment_status failed: %v", res["message"])
	}
	appt, _ := h.appts.Get("appt-1")
	if appt.Status != appointments.StatusCancelled {
		t.Errorf("status = %q, want cancelled", appt.Status)
	}
	if len(h.appts.List()) != 2 {
		t.Error("cancelling must not remove the appointment")
	}

	for _, args := range []string{
		`{"appointment_id":"appt-1","status":"deleted"}`,
		`{"appointment_id":"appt-404","status":"completed"}`,
		`{"status":"completed"}`,
	} {
		if res := h.exec(t, "update_appointment_status", args); res["success"] != false {
			t.Errorf("update_appointment_status(%s) succeeded, want failure", args)
		}
	}
}

func TestStringArg(t *testing.T) {
	args := map[string]any{"s": "  x ", "n": float64(3), "nil": nil}
	if got := stringArg(args, "s"); got != "x" {
		t.Errorf("stringArg(s) = %q", got)
	}
	if got := stringArg(args, "n"); got != "3" {
		t.Errorf("stringArg(n) = %q", got)
	}
	if got := stringArg(args, "nil"); got != "" {
		t.Errorf("stringArg(nil) = %q", got)
	}
	if got := stringArg(args, "missing"); got != "" {
		t.Errorf("stringArg(missing) = %q", got)
	}
}
