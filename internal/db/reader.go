package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
)

// NewReader wraps the GORM connection pool in sqlx for hand-written read
// queries. Both share the same *sql.DB.
func NewReader(db *gorm.DB) (*sqlx.DB, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrapping gorm pool: %w", err)
	}

	// sqlx picks the bindvar style from the driver name.
	driverName := "sqlite3"
	if db.Dialector.Name() == DriverPostgres {
		driverName = "pgx"
	}
	return sqlx.NewDb(sqlDB, driverName), nil
}
