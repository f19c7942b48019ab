package postgres

import (
	"context"
	"time"
)

// HealthStatus represents the health state of the Postgres connection
type HealthStatus struct {
	Connected    bool          `json:"connected"`
	ResponseTime time.Duration `json:"response_time_ms"`
	Error        string        `json:"error,omitempty"`
}

// HealthCheck performs a health check against the database
func (c *PostgresClient) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{}

	if c.db == nil {
		status.Error = "not connected"
		return status
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	err := c.db.PingContext(checkCtx)
	status.ResponseTime = time.Since(start)

	if err != nil {
		status.Error = err.Error()
		return status
	}

	status.Connected = true
	return status
}
