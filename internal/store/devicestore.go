package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"weather-notify/internal/cache"
	"weather-notify/internal/models"

	"go.uber.org/zap"
)

// DeviceStore is a file-backed collection of registered devices, keyed by
// push token.
type DeviceStore struct {
	mu       sync.RWMutex
	devices  map[string]models.Device
	filePath string
	logger   *zap.Logger
}

func NewDeviceStore(filePath string, logger *zap.Logger) *DeviceStore {
	return &DeviceStore{
		devices:  make(map[string]models.Device),
		filePath: filePath,
		logger:   logger,
	}
}

// Load reads the device file from disk. A missing file starts the store empty.
func (s *DeviceStore) Load() error {
	content, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("Device storage file does not exist, starting fresh",
				zap.String("path", s.filePath))
			return nil
		}
		return fmt.Errorf("reading device storage: %w", err)
	}

	devices := make(map[string]models.Device)
	if err := json.Unmarshal(content, &devices); err != nil {
		return fmt.Errorf("parsing device storage: %w", err)
	}

	s.mu.Lock()
	s.devices = devices
	s.mu.Unlock()

	s.logger.Info("Loaded devices from storage", zap.Int("count", len(devices)))
	return nil
}

func (s *DeviceStore) save() error {
	content, err := json.MarshalIndent(s.devices, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding device storage: %w", err)
	}

	if dir := filepath.Dir(s.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating storage directory: %w", err)
		}
	}

	if err := os.WriteFile(s.filePath, content, 0o644); err != nil {
		return fmt.Errorf("writing device storage: %w", err)
	}

	return nil
}

// Upsert inserts or replaces a device record and persists the store.
func (s *DeviceStore) Upsert(device models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.devices[device.Token] = device
	return s.save()
}

// GetByToken returns the device registered with the given push token.
func (s *DeviceStore) GetByToken(token string) (models.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	device, ok := s.devices[token]
	return device, ok
}

// Remove deletes a device by token. Returns true iff something was removed.
func (s *DeviceStore) Remove(token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[token]; !ok {
		return false, nil
	}
	delete(s.devices, token)
	return true, s.save()
}

// GetAll returns every registered device.
func (s *DeviceStore) GetAll() []models.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]models.Device, 0, len(s.devices))
	for _, d := range s.devices {
		devices = append(devices, d)
	}
	return devices
}

// GetEnabled returns every device with notifications enabled.
func (s *DeviceStore) GetEnabled() []models.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]models.Device, 0, len(s.devices))
	for _, d := range s.devices {
		if d.Enabled {
			devices = append(devices, d)
		}
	}
	return devices
}

// GetByCity returns enabled devices subscribed to the given city. City
// matching uses the same normalization as geocoding cache keys.
func (s *DeviceStore) GetByCity(city string) []models.Device {
	want := cache.NormalizeKey(city)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var devices []models.Device
	for _, d := range s.devices {
		if !d.Enabled {
			continue
		}
		for _, c := range d.Cities {
			if cache.NormalizeKey(c) == want {
				devices = append(devices, d)
				break
			}
		}
	}
	return devices
}

// Count returns the number of registered devices.
func (s *DeviceStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}
