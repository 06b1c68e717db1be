package lights

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DemoController is the offline stand-in for a gateway. It keeps
// substitute light state in memory and writes every would-be gateway
// request to its output instead of transmitting it. Reads always
// succeed.
type DemoController struct {
	mu     sync.RWMutex
	out    io.Writer
	lights map[int]demoLight
}

type demoLight struct {
	name  string
	state DeviceState
}

// NewDemoController seeds the controller with a small fixed set of
// lights and prints would-be requests to stdout.
func NewDemoController() *DemoController {
	return NewDemoControllerWithOutput(os.Stdout)
}

func NewDemoControllerWithOutput(out io.Writer) *DemoController {
	u8 := func(v uint8) *uint8 { return &v }
	u16 := func(v uint16) *uint16 { return &v }
	return &DemoController{
		out: out,
		lights: map[int]demoLight{
			1: {name: "Bathroom light", state: DeviceState{On: true, Reachable: true, Bri: u8(255), Hue: u16(0), Sat: u8(200)}},
			2: {name: "Outside lighting", state: DeviceState{On: false, Reachable: true, Bri: u8(180)}},
			3: {name: "Studio lamp", state: DeviceState{On: true, Reachable: true, Bri: u8(120), Hue: u16(12750), Sat: u8(140)}},
		},
	}
}

func (c *DemoController) Source() Source {
	return SourceDemo
}

func (c *DemoController) Discover(ctx context.Context) ([]Device, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]int, 0, len(c.lights))
	for id := range c.lights {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	result := make([]Device, 0, len(ids))
	for _, id := range ids {
		l := c.lights[id]
		result = append(result, Device{
			ID:       fmt.Sprintf("demo:%d", id),
			Source:   SourceDemo,
			Name:     l.name,
			Model:    "Demo light",
			Type:     "Extended color light",
			LastSeen: time.Now(),
			HasColor: l.state.Hue != nil,
		})
	}
	return result, nil
}

func (c *DemoController) SetState(ctx context.Context, deviceID string, change StateChange) error {
	id, err := c.lightID(deviceID)
	if err != nil {
		return err
	}

	body, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshaling demo state change: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lights[id]
	if !ok {
		return fmt.Errorf("demo light %d does not exist", id)
	}

	fmt.Fprintf(c.out, "demo: PUT /api/<key>/lights/%d/state %s\n", id, body)

	if change.On != nil {
		l.state.On = *change.On
	}
	if change.Bri != nil {
		l.state.Bri = change.Bri
	}
	if change.Hue != nil {
		l.state.Hue = change.Hue
	}
	if change.Sat != nil {
		l.state.Sat = change.Sat
	}
	if change.CT != nil {
		l.state.CT = change.CT
	}
	c.lights[id] = l
	return nil
}

func (c *DemoController) GetState(ctx context.Context, deviceID string) (DeviceState, error) {
	id, err := c.lightID(deviceID)
	if err != nil {
		return DeviceState{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.lights[id]
	if !ok {
		return DeviceState{}, fmt.Errorf("demo light %d does not exist", id)
	}
	return l.state, nil
}

func (c *DemoController) TurnOn(ctx context.Context, deviceID string) error {
	on := true
	return c.SetState(ctx, deviceID, StateChange{On: &on})
}

func (c *DemoController) TurnOff(ctx context.Context, deviceID string) error {
	on := false
	return c.SetState(ctx, deviceID, StateChange{On: &on})
}

func (c *DemoController) Close() error {
	return nil
}

func (c *DemoController) lightID(deviceID string) (int, error) {
	parts := strings.SplitN(deviceID, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed device id %q", deviceID)
	}
	return strconv.Atoi(parts[1])
}
