package db

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// GetSQLStats maps database/sql statistics onto PoolStats. Waits count as
// acquisitions.
func GetSQLStats(db *sql.DB) *PoolStats {
	stat := db.Stats()
	return &PoolStats{
		TotalConns:      int32(stat.OpenConnections),
		IdleConns:       int32(stat.Idle),
		AcquiredConns:   int32(stat.InUse),
		MaxConns:        int32(stat.MaxOpenConnections),
		AcquireCount:    stat.WaitCount,
		AcquireDuration: stat.WaitDuration.String(),
		Healthy:         true,
	}
}

// Probe checks one document store.
type Probe struct {
	Driver string
	Ping   func(ctx context.Context) error
	Stats  func() *PoolStats
}

// PGProbe probes a PostgreSQL pool.
func PGProbe(pool *pgxpool.Pool) Probe {
	return Probe{
		Driver: "postgres",
		Ping:   pool.Ping,
		Stats:  func() *PoolStats { return GetPoolStats(pool) },
	}
}

// SQLiteProbe probes a SQLite handle.
func SQLiteProbe(db *sql.DB) Probe {
	return Probe{
		Driver: "sqlite",
		Ping:   db.PingContext,
		Stats:  func() *PoolStats { return GetSQLStats(db) },
	}
}

// HealthHandler returns a handler for the store health check endpoint. A
// probe without Ping is always healthy.
func HealthHandler(p Probe) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		var err error
		if p.Ping != nil {
			err = p.Ping(ctx)
		}
		body := map[string]interface{}{"driver": p.Driver}
		var stats *PoolStats
		if p.Stats != nil {
			stats = p.Stats()
			body["pool"] = stats
		}

		if err != nil {
			if stats != nil {
				stats.Healthy = false
			}
			body["status"] = "unhealthy"
			body["error"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}

		body["status"] = "healthy"
		return c.JSON(http.StatusOK, body)
	}
}
