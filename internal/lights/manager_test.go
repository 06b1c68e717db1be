package lights_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"deconzctl/internal/lights"
)

// fakeController is a scriptable in-memory controller for manager
// tests.
type fakeController struct {
	mu          sync.Mutex
	source      lights.Source
	devices     []lights.Device
	states      map[string]lights.DeviceState
	discoverErr error
	setCalls    []string
}

func newFakeController(source lights.Source, devices ...lights.Device) *fakeController {
	return &fakeController{
		source:  source,
		devices: devices,
		states:  make(map[string]lights.DeviceState),
	}
}

func (f *fakeController) Source() lights.Source { return f.source }

func (f *fakeController) Discover(ctx context.Context) ([]lights.Device, error) {
	if f.discoverErr != nil {
		return nil, f.discoverErr
	}
	return f.devices, nil
}

func (f *fakeController) SetState(ctx context.Context, deviceID string, change lights.StateChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls = append(f.setCalls, deviceID)
	state := f.states[deviceID]
	if change.On != nil {
		state.On = *change.On
	}
	if change.Bri != nil {
		state.Bri = change.Bri
	}
	f.states[deviceID] = state
	return nil
}

func (f *fakeController) GetState(ctx context.Context, deviceID string) (lights.DeviceState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[deviceID], nil
}

func (f *fakeController) TurnOn(ctx context.Context, deviceID string) error {
	on := true
	return f.SetState(ctx, deviceID, lights.StateChange{On: &on})
}

func (f *fakeController) TurnOff(ctx context.Context, deviceID string) error {
	on := false
	return f.SetState(ctx, deviceID, lights.StateChange{On: &on})
}

func (f *fakeController) Close() error { return nil }

func device(id, name string) lights.Device {
	return lights.Device{ID: id, Source: lights.SourceDeconz, Name: name}
}

func TestManagerDiscoverAll(t *testing.T) {
	m := lights.NewManager()
	m.RegisterController(newFakeController(lights.SourceDeconz,
		device("deconz:1", "Bathroom light"),
		device("deconz:2", "Outside lighting"),
	))

	devices, err := m.DiscoverAll(context.Background())
	if err != nil {
		t.Fatalf("discovering: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("device count: got %d, want 2", len(devices))
	}
	if got := m.GetDevices(); len(got) != 2 {
		t.Errorf("cached device count: got %d, want 2", len(got))
	}
}

func TestManagerDiscoverErrorOnlyFatalWithoutDevices(t *testing.T) {
	m := lights.NewManager()
	broken := newFakeController(lights.SourceDemo)
	broken.discoverErr = errors.New("gateway unreachable")
	m.RegisterController(broken)
	m.RegisterController(newFakeController(lights.SourceDeconz, device("deconz:1", "Bathroom light")))

	devices, err := m.DiscoverAll(context.Background())
	if err != nil {
		t.Fatalf("one working controller should suffice: %v", err)
	}
	if len(devices) != 1 {
		t.Errorf("device count: got %d, want 1", len(devices))
	}

	empty := lights.NewManager()
	empty.RegisterController(broken)
	if _, err := empty.DiscoverAll(context.Background()); err == nil {
		t.Error("expected an error when every controller fails")
	}
}

func TestManagerRoutesBySource(t *testing.T) {
	m := lights.NewManager()
	ctrl := newFakeController(lights.SourceDeconz, device("deconz:1", "Bathroom light"))
	m.RegisterController(ctrl)

	if err := m.TurnOn(context.Background(), "deconz:1"); err != nil {
		t.Fatalf("turning on: %v", err)
	}
	if len(ctrl.setCalls) != 1 || ctrl.setCalls[0] != "deconz:1" {
		t.Errorf("set calls: got %v", ctrl.setCalls)
	}

	if err := m.TurnOn(context.Background(), "unknown:1"); err == nil {
		t.Error("expected an error for an unregistered source")
	}
	if err := m.TurnOn(context.Background(), "noseparator"); err == nil {
		t.Error("expected an error for a malformed device id")
	}
}

func TestManagerToggle(t *testing.T) {
	m := lights.NewManager()
	ctrl := newFakeController(lights.SourceDeconz, device("deconz:1", "Bathroom light"))
	m.RegisterController(ctrl)

	on, err := m.Toggle(context.Background(), "deconz:1")
	if err != nil {
		t.Fatalf("toggling: %v", err)
	}
	if !on {
		t.Error("first toggle should turn the light on")
	}

	on, err = m.Toggle(context.Background(), "deconz:1")
	if err != nil {
		t.Fatalf("toggling back: %v", err)
	}
	if on {
		t.Error("second toggle should turn the light off")
	}
}

func TestManagerSearch(t *testing.T) {
	m := lights.NewManager()
	m.SetDevices([]lights.Device{
		device("deconz:1", "Bathroom light"),
		device("deconz:2", "Outside lighting"),
		device("deconz:3", "Studio lamp"),
	})

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"light", 2},
		{"LIGHT", 2},
		{"studio", 1},
		{"deconz:2", 1},
		{"nope", 0},
	}
	for _, tt := range tests {
		if got := m.Search(tt.query); len(got) != tt.want {
			t.Errorf("search %q: got %d device(s), want %d", tt.query, len(got), tt.want)
		}
	}
}
