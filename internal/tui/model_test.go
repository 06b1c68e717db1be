package tui

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"deconzctl/internal/lights"
)

func newTestModel(t *testing.T) (Model, *lights.Manager) {
	t.Helper()
	manager := lights.NewManager()
	manager.RegisterController(lights.NewDemoControllerWithOutput(&bytes.Buffer{}))
	m := New(manager, time.Second)
	m.list.SetSize(80, 24)
	return m, manager
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("update returned %T", next)
	}
	return model, cmd
}

func TestDevicesMsgPopulatesList(t *testing.T) {
	m, manager := newTestModel(t)

	devices, err := manager.DiscoverAll(context.Background())
	if err != nil {
		t.Fatalf("discovering: %v", err)
	}
	m, cmd := update(t, m, devicesMsg{devices: devices})
	if cmd == nil {
		t.Fatal("expected a follow-up command to load states")
	}
	if got := len(m.list.Items()); got != 3 {
		t.Fatalf("list items: got %d, want 3", got)
	}
	if !strings.Contains(m.status, "3 light(s)") {
		t.Errorf("status: got %q", m.status)
	}
}

func TestDevicesMsgReportsError(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = update(t, m, devicesMsg{err: context.DeadlineExceeded})
	if !strings.Contains(m.status, "Discovery failed") {
		t.Errorf("status: got %q", m.status)
	}
}

func TestStatesMsgUpdatesItems(t *testing.T) {
	m, manager := newTestModel(t)
	devices, _ := manager.DiscoverAll(context.Background())
	m, _ = update(t, m, devicesMsg{devices: devices})

	bri := uint8(42)
	m, _ = update(t, m, statesMsg{states: map[string]lights.DeviceState{
		"demo:1": {On: true, Reachable: true, Bri: &bri},
	}})

	item, ok := m.list.Items()[0].(deviceItem)
	if !ok {
		t.Fatalf("unexpected item type %T", m.list.Items()[0])
	}
	if item.state == nil || !item.state.On {
		t.Fatalf("item state: got %+v", item.state)
	}
	if !strings.Contains(item.Description(), "bri 42") {
		t.Errorf("description: got %q", item.Description())
	}
}

func TestToggleKeyTogglesSelectedLight(t *testing.T) {
	m, manager := newTestModel(t)
	devices, _ := manager.DiscoverAll(context.Background())
	m, _ = update(t, m, devicesMsg{devices: devices})

	// demo:1 starts on; enter must produce a toggle command that turns
	// it off.
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected a toggle command")
	}
	msg := cmd()
	action, ok := msg.(actionMsg)
	if !ok {
		t.Fatalf("toggle produced %T", msg)
	}
	if action.err != nil {
		t.Fatalf("toggle error: %v", action.err)
	}

	state, err := manager.GetState(context.Background(), "demo:1")
	if err != nil {
		t.Fatalf("reading state: %v", err)
	}
	if state.On {
		t.Error("toggle left the light on")
	}
}

func TestBrightnessClamping(t *testing.T) {
	m, manager := newTestModel(t)
	devices, _ := manager.DiscoverAll(context.Background())
	m, _ = update(t, m, devicesMsg{devices: devices})

	low := uint8(10)
	m, _ = update(t, m, statesMsg{states: map[string]lights.DeviceState{
		"demo:1": {On: true, Reachable: true, Bri: &low},
	}})

	// Dimming below 1 clamps instead of wrapping or turning off.
	cmd := m.brightnessCmd("demo:1", -25)
	if msg, ok := cmd().(actionMsg); !ok || msg.err != nil {
		t.Fatalf("dim command failed: %+v", msg)
	}
	state, err := manager.GetState(context.Background(), "demo:1")
	if err != nil {
		t.Fatalf("reading state: %v", err)
	}
	if state.Bri == nil || *state.Bri != 1 {
		t.Errorf("brightness: got %+v, want 1", state.Bri)
	}
	if !state.On {
		t.Error("dimming must not turn the light off")
	}
}

func TestColorInputFlow(t *testing.T) {
	m, manager := newTestModel(t)
	devices, _ := manager.DiscoverAll(context.Background())
	m, _ = update(t, m, devicesMsg{devices: devices})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})
	if !m.editingColor || m.colorTarget != "demo:1" {
		t.Fatalf("color edit not started: editing=%v target=%q", m.editingColor, m.colorTarget)
	}

	for _, r := range "#ff0000" {
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.editingColor {
		t.Error("enter must leave color edit mode")
	}
	if cmd == nil {
		t.Fatal("expected a set-state command")
	}
	if msg, ok := cmd().(actionMsg); !ok || msg.err != nil {
		t.Fatalf("set-state failed: %+v", msg)
	}

	state, err := manager.GetState(context.Background(), "demo:1")
	if err != nil {
		t.Fatalf("reading state: %v", err)
	}
	if state.Hue == nil || *state.Hue != 0 || state.Sat == nil || *state.Sat != 255 {
		t.Errorf("color fields after set: %+v", state)
	}
}

func TestInvalidColorKeepsModelUsable(t *testing.T) {
	m, manager := newTestModel(t)
	devices, _ := manager.DiscoverAll(context.Background())
	m, _ = update(t, m, devicesMsg{devices: devices})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})
	for _, r := range "purple" {
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("invalid color must not produce a command")
	}
	if !strings.Contains(m.status, "Invalid color") {
		t.Errorf("status: got %q", m.status)
	}
}
