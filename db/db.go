package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Gorm is the Postgres-backed Store used in production.
type Gorm struct {
	db *gorm.DB
}

var _ Store = (*Gorm)(nil)

// Open connects to Postgres and migrates the schema.
func Open(dsn string) (*Gorm, error) {
	g, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}

	if err := g.AutoMigrate(
		&User{},
		&Group{},
		&ActivationToken{},
		&ReportWindow{},
		&Report{},
		&Summary{},
	); err != nil {
		return nil, fmt.Errorf("db: migrate: %w", err)
	}

	return &Gorm{db: g}, nil
}
