package lights

import "context"

type Controller interface {
	Source() Source
	Discover(ctx context.Context) ([]Device, error)
	SetState(ctx context.Context, deviceID string, change StateChange) error
	GetState(ctx context.Context, deviceID string) (DeviceState, error)
	TurnOn(ctx context.Context, deviceID string) error
	TurnOff(ctx context.Context, deviceID string) error
	Close() error
}
