package lights

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
)

type Manager struct {
	mu          sync.RWMutex
	controllers map[Source]Controller
	devices     map[string]Device
}

func NewManager() *Manager {
	return &Manager{
		controllers: make(map[Source]Controller),
		devices:     make(map[string]Device),
	}
}

func (m *Manager) RegisterController(c Controller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.controllers[c.Source()] = c
}

func (m *Manager) GetController(source Source) (Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.controllers[source]
	return c, ok
}

func (m *Manager) DiscoverAll(ctx context.Context) ([]Device, error) {
	return m.DiscoverAllWithProgress(ctx, nil)
}

// DiscoverAllWithProgress runs discovery across all controllers
// concurrently. onDevices is called (under an internal lock, so
// serially) each time a controller finishes, with only the devices
// that controller returned.
func (m *Manager) DiscoverAllWithProgress(ctx context.Context, onDevices func([]Device)) ([]Device, error) {
	m.mu.RLock()
	controllers := make([]Controller, 0, len(m.controllers))
	for _, c := range m.controllers {
		controllers = append(controllers, c)
	}
	m.mu.RUnlock()

	var (
		allDevices []Device
		mu         sync.Mutex
		wg         sync.WaitGroup
		errs       []error
	)

	for _, c := range controllers {
		wg.Add(1)
		go func(ctrl Controller) {
			defer wg.Done()
			devices, err := ctrl.Discover(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", ctrl.Source(), err))
				return
			}
			allDevices = append(allDevices, devices...)
			if onDevices != nil && len(devices) > 0 {
				onDevices(devices)
			}
		}(c)
	}

	wg.Wait()

	m.mu.Lock()
	for _, d := range allDevices {
		m.devices[d.ID] = d
	}
	m.mu.Unlock()

	if len(errs) > 0 && len(allDevices) == 0 {
		return nil, fmt.Errorf("discovery failed: %v", errs)
	}

	return allDevices, nil
}

func (m *Manager) SetState(ctx context.Context, deviceID string, change StateChange) error {
	ctrl, ok := m.GetController(sourceFromDeviceID(deviceID))
	if !ok {
		return fmt.Errorf("no controller for device %q", deviceID)
	}
	log.Printf("[manager] SetState %s", deviceID)
	if err := ctrl.SetState(ctx, deviceID, change); err != nil {
		log.Printf("[manager] SetState %s failed: %v", deviceID, err)
		return err
	}
	return nil
}

func (m *Manager) GetState(ctx context.Context, deviceID string) (DeviceState, error) {
	ctrl, ok := m.GetController(sourceFromDeviceID(deviceID))
	if !ok {
		return DeviceState{}, fmt.Errorf("no controller for device %q", deviceID)
	}
	return ctrl.GetState(ctx, deviceID)
}

func (m *Manager) TurnOn(ctx context.Context, deviceID string) error {
	ctrl, ok := m.GetController(sourceFromDeviceID(deviceID))
	if !ok {
		return fmt.Errorf("no controller for device %q", deviceID)
	}
	log.Printf("[manager] TurnOn %s", deviceID)
	if err := ctrl.TurnOn(ctx, deviceID); err != nil {
		log.Printf("[manager] TurnOn %s failed: %v", deviceID, err)
		return err
	}
	return nil
}

func (m *Manager) TurnOff(ctx context.Context, deviceID string) error {
	ctrl, ok := m.GetController(sourceFromDeviceID(deviceID))
	if !ok {
		return fmt.Errorf("no controller for device %q", deviceID)
	}
	log.Printf("[manager] TurnOff %s", deviceID)
	if err := ctrl.TurnOff(ctx, deviceID); err != nil {
		log.Printf("[manager] TurnOff %s failed: %v", deviceID, err)
		return err
	}
	return nil
}

// Toggle reads the current on/off state and writes its inverse. It
// returns the new state.
func (m *Manager) Toggle(ctx context.Context, deviceID string) (bool, error) {
	state, err := m.GetState(ctx, deviceID)
	if err != nil {
		return false, err
	}
	on := !state.On
	change := StateChange{On: &on}
	if err := m.SetState(ctx, deviceID, change); err != nil {
		return false, err
	}
	return on, nil
}

func (m *Manager) GetDevices() []Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	devices := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, d)
	}
	sortDevices(devices)
	return devices
}

// Search filters the cached devices by a case-insensitive substring
// match on name or id. An empty query returns everything.
func (m *Manager) Search(query string) []Device {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return m.GetDevices()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var devices []Device
	for _, d := range m.devices {
		if strings.Contains(strings.ToLower(d.Name), query) || strings.Contains(strings.ToLower(d.ID), query) {
			devices = append(devices, d)
		}
	}
	sortDevices(devices)
	return devices
}

func (m *Manager) SetDevices(devices []Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range devices {
		m.devices[d.ID] = d
	}
}

func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.controllers {
		_ = c.Close()
	}
	return nil
}

func sortDevices(devices []Device) {
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Source != devices[j].Source {
			return devices[i].Source < devices[j].Source
		}
		return devices[i].Name < devices[j].Name
	})
}

func sourceFromDeviceID(id string) Source {
	parts := strings.SplitN(id, ":", 2)
	if len(parts) < 2 {
		return ""
	}
	return Source(parts[0])
}
