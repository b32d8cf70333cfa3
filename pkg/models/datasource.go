package models

import (
	"time"

	"github.com/google/uuid"
)

// SourceStatus is the health grade of a datasource. Unhealthy sources stay
// registered but are excluded from search fan-out until a probe observes
// recovery.
type SourceStatus string

const (
	StatusHealthy   SourceStatus = "healthy"
	StatusDegraded  SourceStatus = "degraded"
	StatusUnhealthy SourceStatus = "unhealthy"
)

// ServesTraffic reports whether a source in this state participates in
// fan-out. Degraded sources still serve traffic.
func (s SourceStatus) ServesTraffic() bool {
	return s == StatusHealthy || s == StatusDegraded
}

// Datasource represents a user-registered, MySQL-compatible database.
// The Config field contains connection details (host, port, credentials)
// which are encrypted at rest by the service layer and decrypted only at
// pool construction time.
type Datasource struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	DatasourceType string         `json:"datasource_type"` // "mysql", "mariadb", "tidb", etc.
	Config         map[string]any `json:"config"`          // Decrypted config, never logged
	Status         SourceStatus   `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Health is a point-in-time health observation for a datasource.
type Health struct {
	Status         SourceStatus `json:"status"`
	ResponseTimeMs int64        `json:"response_time_ms"`
	ErrorRate      float64      `json:"error_rate"`
	CheckedAt      time.Time    `json:"checked_at"`
}
