package models

import "time"

// GroupDatabaseConfig holds one group's external database connection, as
// stored in the engine's own database. The password only exists as ciphertext
// here; it is decrypted transiently when a pool is opened and never logged.
type GroupDatabaseConfig struct {
	GroupID           string    `json:"group_id"`
	Host              string    `json:"host"`
	Port              int       `json:"port"`
	Database          string    `json:"database"`
	User              string    `json:"user"`
	EncryptedPassword string    `json:"-"`
	Enabled           bool      `json:"enabled"`
	ConfiguredBy      string    `json:"configured_by"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
