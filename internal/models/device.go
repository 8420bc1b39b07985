package models

// Device is a registered push-notification recipient. The first entry in
// Cities is treated as the device's home location by the backfill engine.
type Device struct {
	ID           string   `json:"id"`
	Token        string   `json:"token" validate:"required"`
	Platform     string   `json:"platform" validate:"oneof=ios android web"`
	DeviceName   string   `json:"deviceName,omitempty"`
	AppVersion   string   `json:"appVersion,omitempty"`
	Cities       []string `json:"cities"`
	Units        string   `json:"units"`
	Enabled      bool     `json:"enabled"`
	RegisteredAt int64    `json:"registeredAt"`
	UpdatedAt    int64    `json:"updatedAt"`
}
