package lights_test

import (
	"testing"

	"deconzctl/internal/lights"
)

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		hex     string
		wantHue uint16
		wantSat uint8
		wantBri uint8
	}{
		{"#ff0000", 0, 255, 255},
		{"#00ff00", 21845, 255, 255},
		{"#000000", 0, 0, 0},
		{"#ffffff", 0, 0, 255},
	}
	for _, tt := range tests {
		hue, sat, bri, err := lights.ParseHexColor(tt.hex)
		if err != nil {
			t.Errorf("%s: %v", tt.hex, err)
			continue
		}
		if hue != tt.wantHue || sat != tt.wantSat || bri != tt.wantBri {
			t.Errorf("%s: got hue=%d sat=%d bri=%d, want hue=%d sat=%d bri=%d",
				tt.hex, hue, sat, bri, tt.wantHue, tt.wantSat, tt.wantBri)
		}
	}
}

func TestParseHexColorRejectsGarbage(t *testing.T) {
	for _, hex := range []string{"", "red", "#12345", "123456"} {
		if _, _, _, err := lights.ParseHexColor(hex); err == nil {
			t.Errorf("%q: expected an error", hex)
		}
	}
}

func TestHexColorRoundTrip(t *testing.T) {
	for _, hex := range []string{"#ff0000", "#00ff00", "#0000ff"} {
		hue, sat, bri, err := lights.ParseHexColor(hex)
		if err != nil {
			t.Fatalf("%s: %v", hex, err)
		}
		if got := lights.HexColor(hue, sat, bri); got != hex {
			t.Errorf("round trip of %s: got %s", hex, got)
		}
	}
}

func TestHexFromState(t *testing.T) {
	u8 := func(v uint8) *uint8 { return &v }
	u16 := func(v uint16) *uint16 { return &v }

	if got := lights.HexFromState(lights.DeviceState{On: true}); got != "" {
		t.Errorf("colorless state: got %q, want empty", got)
	}

	state := lights.DeviceState{On: true, Hue: u16(0), Sat: u8(255), Bri: u8(255)}
	if got := lights.HexFromState(state); got != "#ff0000" {
		t.Errorf("red state: got %q", got)
	}

	// Missing brightness defaults to full.
	state = lights.DeviceState{On: true, Hue: u16(0), Sat: u8(255)}
	if got := lights.HexFromState(state); got != "#ff0000" {
		t.Errorf("briless state: got %q", got)
	}
}

func TestColorChange(t *testing.T) {
	change := lights.ColorChange(1000, 200, 100)
	if change.Hue == nil || *change.Hue != 1000 {
		t.Errorf("hue: got %v", change.Hue)
	}
	if change.Sat == nil || *change.Sat != 200 {
		t.Errorf("sat: got %v", change.Sat)
	}
	if change.Bri == nil || *change.Bri != 100 {
		t.Errorf("bri: got %v", change.Bri)
	}
	if change.On != nil || change.CT != nil {
		t.Errorf("unrequested fields set: %+v", change)
	}
}
