// Package tui is the interactive surface of deconzctl: a filterable
// light list with toggle, brightness, and color controls. It talks to
// the lights manager only, so it works identically against a real
// gateway and the demo controller.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"deconzctl/internal/lights"
)

const requestTimeout = 5 * time.Second

var (
	statusStyle = lipgloss.NewStyle().Faint(true).Padding(0, 1)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)
	promptStyle = lipgloss.NewStyle().Padding(0, 1)
	onStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	offStyle    = lipgloss.NewStyle().Faint(true)
)

type keyMap struct {
	Toggle   key.Binding
	Brighter key.Binding
	Dimmer   key.Binding
	Color    key.Binding
	Refresh  key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Toggle:   key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "toggle")),
	Brighter: key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "brighter")),
	Dimmer:   key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "dimmer")),
	Color:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "color")),
	Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type deviceItem struct {
	device lights.Device
	state  *lights.DeviceState
}

func (i deviceItem) FilterValue() string { return i.device.Name }

func (i deviceItem) Title() string {
	marker := offStyle.Render("○")
	if i.state != nil && i.state.On {
		marker = onStyle.Render("●")
	}
	return fmt.Sprintf("%s %s", marker, i.device.Name)
}

func (i deviceItem) Description() string {
	if i.state == nil {
		return i.device.ID
	}
	desc := i.device.ID
	if i.state.Bri != nil {
		desc += fmt.Sprintf("  bri %d", *i.state.Bri)
	}
	if hex := lights.HexFromState(*i.state); hex != "" {
		desc += "  " + hex
	}
	if !i.state.Reachable {
		desc += "  unreachable"
	}
	return desc
}

type devicesMsg struct {
	devices []lights.Device
	err     error
}

type statesMsg struct {
	states map[string]lights.DeviceState
}

type actionMsg struct {
	deviceID string
	err      error
}

type pollMsg struct{}

type Model struct {
	manager      *lights.Manager
	list         list.Model
	states       map[string]lights.DeviceState
	colorInput   textinput.Model
	editingColor bool
	colorTarget  string
	status       string
	pollInterval time.Duration
}

func New(manager *lights.Manager, pollInterval time.Duration) Model {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	delegate := list.NewDefaultDelegate()
	l := list.New(nil, delegate, 0, 0)
	l.Title = "Lights"
	l.SetShowStatusBar(false)
	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{keys.Toggle, keys.Brighter, keys.Dimmer, keys.Color, keys.Refresh}
	}

	input := textinput.New()
	input.Placeholder = "#rrggbb"
	input.CharLimit = 7
	input.Width = 10

	return Model{
		manager:      manager,
		list:         l,
		states:       make(map[string]lights.DeviceState),
		colorInput:   input,
		pollInterval: pollInterval,
		status:       "Loading lights...",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.discoverCmd(), m.pollCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-2)
		return m, nil

	case devicesMsg:
		if msg.err != nil {
			m.status = "Discovery failed: " + msg.err.Error()
			return m, nil
		}
		items := make([]list.Item, 0, len(msg.devices))
		for _, d := range msg.devices {
			items = append(items, deviceItem{device: d, state: m.stateFor(d.ID)})
		}
		m.status = fmt.Sprintf("%d light(s)", len(msg.devices))
		return m, tea.Batch(m.list.SetItems(items), m.statesCmd(msg.devices))

	case statesMsg:
		for id, st := range msg.states {
			m.states[id] = st
		}
		return m, m.refreshItems()

	case actionMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		return m, m.stateCmd(msg.deviceID)

	case pollMsg:
		return m, tea.Batch(m.statesCmd(m.listedDevices()), m.pollCmd())

	case tea.KeyMsg:
		if m.editingColor {
			return m.updateColorInput(msg)
		}
		if m.list.SettingFilter() {
			break
		}

		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, keys.Refresh):
			m.status = "Refreshing..."
			return m, m.discoverCmd()

		case key.Matches(msg, keys.Toggle):
			if item, ok := m.list.SelectedItem().(deviceItem); ok {
				return m, m.toggleCmd(item.device.ID)
			}

		case key.Matches(msg, keys.Brighter):
			if item, ok := m.list.SelectedItem().(deviceItem); ok {
				return m, m.brightnessCmd(item.device.ID, 25)
			}

		case key.Matches(msg, keys.Dimmer):
			if item, ok := m.list.SelectedItem().(deviceItem); ok {
				return m, m.brightnessCmd(item.device.ID, -25)
			}

		case key.Matches(msg, keys.Color):
			if item, ok := m.list.SelectedItem().(deviceItem); ok {
				m.editingColor = true
				m.colorTarget = item.device.ID
				m.colorInput.SetValue("")
				m.colorInput.Focus()
				return m, textinput.Blink
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) updateColorInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.editingColor = false
		m.colorInput.Blur()
		return m, nil
	case "enter":
		hex := m.colorInput.Value()
		target := m.colorTarget
		m.editingColor = false
		m.colorInput.Blur()
		hue, sat, bri, err := lights.ParseHexColor(hex)
		if err != nil {
			m.status = "Invalid color: " + hex
			return m, nil
		}
		m.status = "Setting color " + hex
		return m, m.setStateCmd(target, lights.ColorChange(hue, sat, bri))
	}

	var cmd tea.Cmd
	m.colorInput, cmd = m.colorInput.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	footer := statusStyle.Render(m.status)
	if m.editingColor {
		footer = promptStyle.Render("Color: " + m.colorInput.View())
	}
	return m.list.View() + "\n" + footer
}

func (m *Model) stateFor(deviceID string) *lights.DeviceState {
	if st, ok := m.states[deviceID]; ok {
		return &st
	}
	return nil
}

func (m *Model) refreshItems() tea.Cmd {
	items := m.list.Items()
	for i, it := range items {
		if di, ok := it.(deviceItem); ok {
			di.state = m.stateFor(di.device.ID)
			items[i] = di
		}
	}
	return m.list.SetItems(items)
}

func (m *Model) listedDevices() []lights.Device {
	items := m.list.Items()
	devices := make([]lights.Device, 0, len(items))
	for _, it := range items {
		if di, ok := it.(deviceItem); ok {
			devices = append(devices, di.device)
		}
	}
	return devices
}

func (m Model) discoverCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		devices, err := m.manager.DiscoverAll(ctx)
		return devicesMsg{devices: devices, err: err}
	}
}

func (m Model) statesCmd(devices []lights.Device) tea.Cmd {
	if len(devices) == 0 {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout*2)
		defer cancel()
		states := make(map[string]lights.DeviceState, len(devices))
		for _, d := range devices {
			st, err := m.manager.GetState(ctx, d.ID)
			if err != nil {
				continue
			}
			states[d.ID] = st
		}
		return statesMsg{states: states}
	}
}

func (m Model) stateCmd(deviceID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		st, err := m.manager.GetState(ctx, deviceID)
		if err != nil {
			return statesMsg{}
		}
		return statesMsg{states: map[string]lights.DeviceState{deviceID: st}}
	}
}

func (m Model) toggleCmd(deviceID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, err := m.manager.Toggle(ctx, deviceID)
		return actionMsg{deviceID: deviceID, err: err}
	}
}

func (m Model) setStateCmd(deviceID string, change lights.StateChange) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		err := m.manager.SetState(ctx, deviceID, change)
		return actionMsg{deviceID: deviceID, err: err}
	}
}

// brightnessCmd nudges brightness by delta, clamped to 1-255 so a dim
// never turns the light fully off behind the user's back.
func (m Model) brightnessCmd(deviceID string, delta int) tea.Cmd {
	current := 128
	if st, ok := m.states[deviceID]; ok && st.Bri != nil {
		current = int(*st.Bri)
	}
	next := current + delta
	if next < 1 {
		next = 1
	}
	if next > 255 {
		next = 255
	}
	bri := uint8(next)
	return m.setStateCmd(deviceID, lights.StateChange{Bri: &bri})
}

func (m Model) pollCmd() tea.Cmd {
	return tea.Tick(m.pollInterval, func(time.Time) tea.Msg {
		return pollMsg{}
	})
}
