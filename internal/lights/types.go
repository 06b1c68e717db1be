package lights

import (
	"time"

	"github.com/lucasb-eyer/go-colorful"
)

type Source string

const (
	SourceDeconz Source = "deconz"
	SourceDemo   Source = "demo"
)

type Device struct {
	ID           string    `json:"id"`
	Source       Source    `json:"source"`
	Name         string    `json:"name"`
	Model        string    `json:"model,omitempty"`
	Type         string    `json:"type,omitempty"`
	Manufacturer string    `json:"manufacturer,omitempty"`
	UniqueID     string    `json:"uniqueId,omitempty"`
	LastSeen     time.Time `json:"lastSeen"`
	HasColor     bool      `json:"hasColor"`
	// FirmwareVersion is the device's reported software version string.
	FirmwareVersion string `json:"firmwareVersion,omitempty"`
}

// DeviceState carries light state in the gateway's native scales:
// brightness and saturation 0-255, hue 0-65535, color temperature in
// mired. Fields a light does not support stay nil.
type DeviceState struct {
	On        bool    `json:"on"`
	Reachable bool    `json:"reachable"`
	Bri       *uint8  `json:"bri,omitempty"`
	Hue       *uint16 `json:"hue,omitempty"`
	Sat       *uint8  `json:"sat,omitempty"`
	CT        *uint16 `json:"ct,omitempty"`
}

// StateChange names the fields of a write. Nil fields are left alone
// on the device; a change never fills in defaults for fields the
// caller did not ask for.
type StateChange struct {
	On             *bool   `json:"on,omitempty"`
	Bri            *uint8  `json:"bri,omitempty"`
	Hue            *uint16 `json:"hue,omitempty"`
	Sat            *uint8  `json:"sat,omitempty"`
	CT             *uint16 `json:"ct,omitempty"`
	TransitionTime *uint16 `json:"transitionTime,omitempty"`
}

// ColorChange builds a StateChange for a hue/sat/bri triple.
func ColorChange(hue uint16, sat, bri uint8) StateChange {
	return StateChange{Hue: &hue, Sat: &sat, Bri: &bri}
}

// ParseHexColor converts "#rrggbb" into the gateway's hue/sat/bri
// scales.
func ParseHexColor(hex string) (hue uint16, sat, bri uint8, err error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return 0, 0, 0, err
	}
	h, s, v := c.Hsv()
	return uint16(h / 360.0 * 65535.0), uint8(s * 255.0), uint8(v * 255.0), nil
}

// HexColor renders a hue/sat/bri triple as "#rrggbb".
func HexColor(hue uint16, sat, bri uint8) string {
	h := float64(hue) / 65535.0 * 360.0
	s := float64(sat) / 255.0
	v := float64(bri) / 255.0
	return colorful.Hsv(h, s, v).Hex()
}

// HexFromState renders a state's color, or "" when the state carries
// no color fields.
func HexFromState(state DeviceState) string {
	if state.Hue == nil || state.Sat == nil {
		return ""
	}
	bri := uint8(255)
	if state.Bri != nil {
		bri = *state.Bri
	}
	return HexColor(*state.Hue, *state.Sat, bri)
}
