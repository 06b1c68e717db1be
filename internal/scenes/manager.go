package scenes

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"deconzctl/internal/lights"
	"deconzctl/internal/store"
)

type Manager struct {
	mu           sync.RWMutex
	store        *store.Store
	lightManager *lights.Manager
	activeScene  string
}

func NewManager(s *store.Store, lm *lights.Manager) *Manager {
	return &Manager{
		store:        s,
		lightManager: lm,
	}
}

func (m *Manager) GetScenes() []store.Scene {
	return m.store.GetScenes()
}

func (m *Manager) GetScene(id string) (store.Scene, error) {
	for _, s := range m.store.GetScenes() {
		if s.ID == id || s.Name == id {
			return s, nil
		}
	}
	return store.Scene{}, fmt.Errorf("scene %s not found", id)
}

func (m *Manager) CreateScene(name string, devices map[string]lights.StateChange) (store.Scene, error) {
	scene := store.Scene{
		ID:      uuid.New().String(),
		Name:    name,
		Devices: devices,
	}

	if err := m.store.UpsertScene(scene); err != nil {
		return store.Scene{}, err
	}
	return scene, nil
}

// Capture snapshots the current state of the given devices into a new
// scene. Devices whose state cannot be read are skipped.
func (m *Manager) Capture(ctx context.Context, name string, deviceIDs []string) (store.Scene, error) {
	devices := make(map[string]lights.StateChange, len(deviceIDs))
	for _, id := range deviceIDs {
		state, err := m.lightManager.GetState(ctx, id)
		if err != nil {
			log.Printf("[scenes] Skipping %s while capturing %q: %v", id, name, err)
			continue
		}
		on := state.On
		devices[id] = lights.StateChange{
			On:  &on,
			Bri: state.Bri,
			Hue: state.Hue,
			Sat: state.Sat,
			CT:  state.CT,
		}
	}
	if len(devices) == 0 {
		return store.Scene{}, fmt.Errorf("no device state could be captured for scene %q", name)
	}
	return m.CreateScene(name, devices)
}

func (m *Manager) UpdateScene(scene store.Scene) error {
	return m.store.UpsertScene(scene)
}

func (m *Manager) DeleteScene(id string) error {
	return m.store.DeleteScene(id)
}

func (m *Manager) GetActiveScene() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeScene
}

// ActivateScene pushes every captured state change through the light
// manager. Devices that fail are skipped so one unreachable light does
// not block the rest of the scene.
func (m *Manager) ActivateScene(ctx context.Context, id string) error {
	scene, err := m.GetScene(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.activeScene = scene.ID
	m.mu.Unlock()

	for deviceID, change := range scene.Devices {
		if err := m.lightManager.SetState(ctx, deviceID, change); err != nil {
			continue
		}
	}

	return nil
}
