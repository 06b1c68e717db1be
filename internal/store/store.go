package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"deconzctl/internal/lights"
)

// Gateway is a paired deCONZ gateway with its API key.
type Gateway struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	APIKey   string `json:"apiKey"`
	BridgeID string `json:"bridgeId,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Scene is a locally stored snapshot of per-device state changes.
type Scene struct {
	ID      string                         `json:"id"`
	Name    string                         `json:"name"`
	Devices map[string]lights.StateChange `json:"devices"`
}

type Settings struct {
	PollIntervalMs int `json:"pollIntervalMs"`
}

type Config struct {
	Gateways []Gateway       `json:"gateways,omitempty"`
	Devices  []lights.Device `json:"devices,omitempty"`
	Scenes   []Scene         `json:"scenes,omitempty"`
	Settings Settings        `json:"settings"`
}

type Store struct {
	mu       sync.Mutex
	config   Config
	filePath string
}

func New() (*Store, error) {
	p, err := statePath()
	if err != nil {
		return nil, err
	}
	return NewAt(p)
}

// NewAt opens (or initializes) a store at an explicit path.
func NewAt(path string) (*Store, error) {
	s := &Store{
		filePath: path,
		config: Config{
			Settings: Settings{
				PollIntervalMs: 1000,
			},
		},
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return s, nil
}

func (s *Store) GetGateways() []Gateway {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Gateway(nil), s.config.Gateways...)
}

// UpsertGateway replaces a gateway with the same host and port, or
// appends a new one. An empty APIKey keeps the key already stored for
// that address, so a rediscovered gateway stays paired.
func (s *Store) UpsertGateway(gw Gateway) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, g := range s.config.Gateways {
		if g.Host == gw.Host && g.Port == gw.Port {
			if gw.APIKey == "" {
				gw.APIKey = g.APIKey
			}
			s.config.Gateways[i] = gw
			return s.saveLocked()
		}
	}
	s.config.Gateways = append(s.config.Gateways, gw)
	return s.saveLocked()
}

func (s *Store) GetDevices() []lights.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]lights.Device(nil), s.config.Devices...)
}

func (s *Store) SetDevices(devices []lights.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.Devices = devices
	return s.saveLocked()
}

func (s *Store) GetScenes() []Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Scene(nil), s.config.Scenes...)
}

func (s *Store) UpsertScene(scene Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sc := range s.config.Scenes {
		if sc.ID == scene.ID {
			s.config.Scenes[i] = scene
			return s.saveLocked()
		}
	}
	s.config.Scenes = append(s.config.Scenes, scene)
	return s.saveLocked()
}

func (s *Store) DeleteScene(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sc := range s.config.Scenes {
		if sc.ID == id {
			s.config.Scenes = append(s.config.Scenes[:i], s.config.Scenes[i+1:]...)
			break
		}
	}
	return s.saveLocked()
}

func (s *Store) GetSettings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.Settings
}

func (s *Store) SetSettings(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.Settings = settings
	return s.saveLocked()
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Unmarshal(data, &s.config)
}

// saveLocked marshals config and writes atomically. Caller must hold s.mu.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.config, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.filePath)
}

func statePath() (string, error) {
	var dir string
	switch runtime.GOOS {
	case "windows":
		dir = os.Getenv("APPDATA")
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, "Library", "Application Support")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "deconzctl", "state.json"), nil
}
