package lights_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"deconzctl/internal/lights"
)

func TestDemoControllerDiscover(t *testing.T) {
	ctrl := lights.NewDemoControllerWithOutput(&bytes.Buffer{})
	devices, err := ctrl.Discover(context.Background())
	if err != nil {
		t.Fatalf("discovering: %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("device count: got %d, want 3", len(devices))
	}
	if devices[0].Name != "Bathroom light" || devices[0].ID != "demo:1" {
		t.Errorf("first device: got %+v", devices[0])
	}
}

func TestDemoControllerWritesRequestsToOutput(t *testing.T) {
	var out bytes.Buffer
	ctrl := lights.NewDemoControllerWithOutput(&out)

	if err := ctrl.TurnOff(context.Background(), "demo:1"); err != nil {
		t.Fatalf("turning off: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "PUT /api/<key>/lights/1/state") {
		t.Errorf("output missing request line: %q", got)
	}
	if !strings.Contains(got, `{"on":false}`) {
		t.Errorf("output missing body: %q", got)
	}
}

func TestDemoControllerStateSurvivesWrites(t *testing.T) {
	ctrl := lights.NewDemoControllerWithOutput(&bytes.Buffer{})
	ctx := context.Background()

	state, err := ctrl.GetState(ctx, "demo:1")
	if err != nil {
		t.Fatalf("reading initial state: %v", err)
	}
	if !state.On || !state.Reachable {
		t.Errorf("initial state: got %+v", state)
	}

	bri := uint8(42)
	if err := ctrl.SetState(ctx, "demo:1", lights.StateChange{Bri: &bri}); err != nil {
		t.Fatalf("setting brightness: %v", err)
	}

	state, err = ctrl.GetState(ctx, "demo:1")
	if err != nil {
		t.Fatalf("reading state back: %v", err)
	}
	if state.Bri == nil || *state.Bri != 42 {
		t.Errorf("brightness: got %v, want 42", state.Bri)
	}
	if !state.On {
		t.Error("a brightness change must not flip the on state")
	}
}

func TestDemoControllerUnknownLight(t *testing.T) {
	ctrl := lights.NewDemoControllerWithOutput(&bytes.Buffer{})
	if err := ctrl.TurnOn(context.Background(), "demo:99"); err == nil {
		t.Error("expected an error for an unknown light")
	}
	if _, err := ctrl.GetState(context.Background(), "demo:99"); err == nil {
		t.Error("expected an error for an unknown light")
	}
}
