package devices

import (
	"context"
	"errors"
	"time"

	"weather-notify/internal/models"
	"weather-notify/internal/notify"
	"weather-notify/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrDeviceNotFound signals an operation on an unregistered push token.
var ErrDeviceNotFound = errors.New("device not found")

// Service manages push-notification device registrations. It also acts as
// the token source for the expo backend.
type Service struct {
	store  *store.DeviceStore
	expo   *notify.ExpoBackend
	logger *zap.Logger
}

func NewService(deviceStore *store.DeviceStore, logger *zap.Logger) *Service {
	return &Service{
		store:  deviceStore,
		logger: logger,
	}
}

// SetExpoBackend wires the backend used for test pushes. The backend itself
// holds this service as its token source, so wiring happens after both exist.
func (s *Service) SetExpoBackend(expo *notify.ExpoBackend) {
	s.expo = expo
}

// RegisterRequest is the payload for registering or refreshing a device.
type RegisterRequest struct {
	Token      string   `json:"token" validate:"required"`
	Platform   string   `json:"platform" validate:"required,oneof=ios android web"`
	DeviceName string   `json:"deviceName"`
	AppVersion string   `json:"appVersion"`
	Cities     []string `json:"cities"`
	Units      string   `json:"units" validate:"omitempty,oneof=standard metric imperial"`
}

// SettingsRequest updates mutable settings on an existing registration.
type SettingsRequest struct {
	Cities  *[]string `json:"cities"`
	Units   *string   `json:"units" validate:"omitempty,oneof=standard metric imperial"`
	Enabled *bool     `json:"enabled"`
}

// Register upserts a device keyed by its push token. Re-registering an
// existing token refreshes its metadata but keeps its id and registration
// time.
func (s *Service) Register(req RegisterRequest) (models.Device, error) {
	now := time.Now().Unix()

	device, exists := s.store.GetByToken(req.Token)
	if !exists {
		device = models.Device{
			ID:           uuid.New().String(),
			Token:        req.Token,
			Enabled:      true,
			RegisteredAt: now,
		}
	}

	device.Platform = req.Platform
	device.DeviceName = req.DeviceName
	device.AppVersion = req.AppVersion
	device.Cities = req.Cities
	device.Units = req.Units
	if device.Units == "" {
		device.Units = "metric"
	}
	device.UpdatedAt = now

	if err := s.store.Upsert(device); err != nil {
		return models.Device{}, err
	}

	s.logger.Info("Device registered",
		zap.String("device_id", device.ID),
		zap.String("platform", device.Platform),
		zap.Int("cities", len(device.Cities)))

	return device, nil
}

// Unregister removes a device by token.
func (s *Service) Unregister(token string) error {
	removed, err := s.store.Remove(token)
	if err != nil {
		return err
	}
	if !removed {
		return ErrDeviceNotFound
	}
	s.logger.Info("Device unregistered")
	return nil
}

// UpdateSettings applies partial settings changes to a registered device.
func (s *Service) UpdateSettings(token string, req SettingsRequest) (models.Device, error) {
	device, exists := s.store.GetByToken(token)
	if !exists {
		return models.Device{}, ErrDeviceNotFound
	}

	if req.Cities != nil {
		device.Cities = *req.Cities
	}
	if req.Units != nil {
		device.Units = *req.Units
	}
	if req.Enabled != nil {
		device.Enabled = *req.Enabled
	}
	device.UpdatedAt = time.Now().Unix()

	if err := s.store.Upsert(device); err != nil {
		return models.Device{}, err
	}
	return device, nil
}

func (s *Service) Get(token string) (models.Device, bool) {
	return s.store.GetByToken(token)
}

func (s *Service) GetAll() []models.Device {
	return s.store.GetAll()
}

func (s *Service) Count() int {
	return s.store.Count()
}

// TokensForCity implements notify.TokenSource. An empty city resolves to
// every enabled device.
func (s *Service) TokensForCity(city string) []string {
	var devs []models.Device
	if city == "" {
		devs = s.store.GetEnabled()
	} else {
		devs = s.store.GetByCity(city)
	}

	tokens := make([]string, 0, len(devs))
	for _, d := range devs {
		tokens = append(tokens, d.Token)
	}
	return tokens
}

// SendTest pushes a test notification to a single registered device.
func (s *Service) SendTest(ctx context.Context, token string) error {
	if _, exists := s.store.GetByToken(token); !exists {
		return ErrDeviceNotFound
	}
	if s.expo == nil {
		return errors.New("expo backend not configured")
	}

	msg := &notify.Message{
		Title:    "Test Notification",
		Body:     "Push notifications are working.",
		Priority: notify.PriorityDefault,
		Tags:     []string{"test"},
	}
	return s.expo.SendToToken(ctx, token, msg)
}
