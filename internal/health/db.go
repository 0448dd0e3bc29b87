package health

import (
	"context"
	"database/sql"
	"fmt"
)

// DBChecker reports whether the article database is reachable.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a checker over db.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
