package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Warehouse holds the connection pool to the columnar store and provides
// access to the typed gateways. It owns no domain state; it is a stateless
// transport used by every other component.
type Warehouse struct {
	Pool *pgxpool.Pool

	Snapshots *SnapshotRepository
	Games     *GameRepository
}

// Config holds warehouse connection configuration
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string

	// SnapshotTable is the destination table for raw snapshot rows.
	SnapshotTable string
}

// New creates a new warehouse connection pool and initializes gateways
func New(ctx context.Context, cfg Config) (*Warehouse, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
		cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse warehouse config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping warehouse: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Str("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("Successfully connected to warehouse")

	table := cfg.SnapshotTable
	if table == "" {
		table = "raw_snapshots"
	}

	wh := &Warehouse{Pool: pool}
	wh.Snapshots = &SnapshotRepository{wh: wh, table: table}
	wh.Games = &GameRepository{wh: wh}

	return wh, nil
}

// Close closes the warehouse connection pool
func (wh *Warehouse) Close() {
	if wh.Pool != nil {
		wh.Pool.Close()
		log.Info().Msg("Warehouse connection pool closed")
	}
}

// Health checks if the warehouse is reachable
func (wh *Warehouse) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := wh.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("warehouse health check failed: %w", err)
	}

	return nil
}

// PoolStats returns connection pool statistics
func (wh *Warehouse) PoolStats() map[string]interface{} {
	stat := wh.Pool.Stat()
	return map[string]interface{}{
		"total_conns":    stat.TotalConns(),
		"acquired_conns": stat.AcquiredConns(),
		"idle_conns":     stat.IdleConns(),
		"max_conns":      stat.MaxConns(),
	}
}
