package lights

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"deconzctl/internal/deconz"
)

// DeconzController adapts a deCONZ gateway client to the Controller
// interface. Device ids are "deconz:<light id>".
type DeconzController struct {
	client *deconz.Client
}

func NewDeconzController(client *deconz.Client) *DeconzController {
	return &DeconzController{client: client}
}

func (c *DeconzController) Source() Source {
	return SourceDeconz
}

func (c *DeconzController) Discover(ctx context.Context) ([]Device, error) {
	lights, err := c.client.Lights(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing gateway lights: %w", err)
	}

	log.Printf("[deconz] Gateway %s reported %d light(s)", c.client.BaseURL(), len(lights))

	result := make([]Device, 0, len(lights))
	for _, id := range deconz.SortedIDs(lights) {
		l := lights[id]
		result = append(result, Device{
			ID:              fmt.Sprintf("deconz:%d", id),
			Source:          SourceDeconz,
			Name:            l.Name,
			Model:           l.ModelID,
			Type:            l.Type,
			Manufacturer:    l.ManufacturerName,
			UniqueID:        l.UniqueID,
			LastSeen:        time.Now(),
			HasColor:        l.HasColor,
			FirmwareVersion: l.SWVersion,
		})
	}
	return result, nil
}

func (c *DeconzController) SetState(ctx context.Context, deviceID string, change StateChange) error {
	id, err := lightIDFromDeviceID(deviceID)
	if err != nil {
		return err
	}
	return c.client.SetLightState(ctx, id, deconz.StateChange{
		On:             change.On,
		Bri:            change.Bri,
		Hue:            change.Hue,
		Sat:            change.Sat,
		CT:             change.CT,
		TransitionTime: change.TransitionTime,
	})
}

func (c *DeconzController) GetState(ctx context.Context, deviceID string) (DeviceState, error) {
	id, err := lightIDFromDeviceID(deviceID)
	if err != nil {
		return DeviceState{}, err
	}
	light, err := c.client.Light(ctx, id)
	if err != nil {
		return DeviceState{}, err
	}
	return DeviceState{
		On:        light.State.On,
		Reachable: light.State.Reachable,
		Bri:       light.State.Bri,
		Hue:       light.State.Hue,
		Sat:       light.State.Sat,
		CT:        light.State.CT,
	}, nil
}

func (c *DeconzController) TurnOn(ctx context.Context, deviceID string) error {
	on := true
	return c.SetState(ctx, deviceID, StateChange{On: &on})
}

func (c *DeconzController) TurnOff(ctx context.Context, deviceID string) error {
	on := false
	return c.SetState(ctx, deviceID, StateChange{On: &on})
}

func (c *DeconzController) Close() error {
	return nil
}

func lightIDFromDeviceID(deviceID string) (int, error) {
	parts := strings.SplitN(deviceID, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed device id %q", deviceID)
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("device id %q has no numeric light id: %w", deviceID, err)
	}
	return id, nil
}
