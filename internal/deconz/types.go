package deconz

import (
	"encoding/json"
	"fmt"
)

// Light is a light resource as the gateway reports it under
// /api/<key>/lights. IDs are not part of the body; they are the keys of
// the enclosing JSON object.
type Light struct {
	Name             string     `json:"name"`
	Type             string     `json:"type,omitempty"`
	ModelID          string     `json:"modelid,omitempty"`
	ManufacturerName string     `json:"manufacturername,omitempty"`
	UniqueID         string     `json:"uniqueid,omitempty"`
	SWVersion        string     `json:"swversion,omitempty"`
	HasColor         bool       `json:"hascolor,omitempty"`
	State            LightState `json:"state"`
}

// LightState is the nested "state" object of a light. Optional fields
// are pointers: a light without color capability simply omits hue/sat,
// and a StateChange only carries the fields being written.
type LightState struct {
	On        bool       `json:"on"`
	Reachable bool       `json:"reachable"`
	Bri       *uint8     `json:"bri,omitempty"`
	Hue       *uint16    `json:"hue,omitempty"`
	Sat       *uint8     `json:"sat,omitempty"`
	CT        *uint16    `json:"ct,omitempty"`
	XY        *[2]float64 `json:"xy,omitempty"`
	ColorMode string     `json:"colormode,omitempty"`
	Effect    string     `json:"effect,omitempty"`
}

// StateChange is the body of a PUT to /lights/<id>/state. Only non-nil
// fields are transmitted; the gateway rejects fields the light does not
// support, so the client never fills in defaults.
type StateChange struct {
	On             *bool       `json:"on,omitempty"`
	Bri            *uint8      `json:"bri,omitempty"`
	Hue            *uint16     `json:"hue,omitempty"`
	Sat            *uint8      `json:"sat,omitempty"`
	CT             *uint16     `json:"ct,omitempty"`
	XY             *[2]float64 `json:"xy,omitempty"`
	TransitionTime *uint16     `json:"transitiontime,omitempty"`
}

// Group is a group resource under /api/<key>/groups.
type Group struct {
	Name   string      `json:"name"`
	Lights []string    `json:"lights"`
	State  GroupState  `json:"state"`
	Action LightState  `json:"action"`
}

type GroupState struct {
	AllOn bool `json:"all_on"`
	AnyOn bool `json:"any_on"`
}

// GatewayConfig is the /api/<key>/config document. The unauthenticated
// /api/config variant carries only a subset (name, bridgeid,
// apiversion, swversion) which is enough for discovery probes.
type GatewayConfig struct {
	Name          string `json:"name"`
	BridgeID      string `json:"bridgeid"`
	APIVersion    string `json:"apiversion"`
	SWVersion     string `json:"swversion"`
	MAC           string `json:"mac,omitempty"`
	ZigbeeChannel int    `json:"zigbeechannel,omitempty"`
	WebsocketPort int    `json:"websocketport,omitempty"`
}

// APIError is one entry of the gateway's error envelope
// [{"error":{"type":101,"address":"/","description":"..."}}].
type APIError struct {
	Type        int    `json:"type"`
	Address     string `json:"address"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway error %d at %s: %s", e.Type, e.Address, e.Description)
}

// errLinkButton is the gateway error type returned while the link
// button has not been pressed during pairing.
const errLinkButton = 101

type apiResponseItem struct {
	Success json.RawMessage `json:"success,omitempty"`
	Error   *APIError       `json:"error,omitempty"`
}
