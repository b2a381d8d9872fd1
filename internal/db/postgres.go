package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/caselight/caselight-backend/internal/logger"
	"github.com/caselight/caselight-backend/internal/types"
	"github.com/caselight/caselight-backend/internal/utils"
)

// NewPostgres opens the database from env and runs migrations. DATABASE_URL
// wins; otherwise the connection is assembled from the DB_* variables.
func NewPostgres(log *logger.Logger) (*gorm.DB, error) {
	dsn := utils.GetEnv("DATABASE_URL", "", log)
	if dsn == "" {
		dsn = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			utils.GetEnv("DB_HOST", "localhost", log),
			utils.GetEnv("DB_USER", "postgres", log),
			utils.GetEnv("DB_PASSWORD", "postgres", log),
			utils.GetEnv("DB_NAME", "caselight", log),
			utils.GetEnv("DB_PORT", "5432", log),
			utils.GetEnv("DB_SSLMODE", "disable", log),
		)
	}

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		return nil, fmt.Errorf("create uuid extension: %w", err)
	}
	if err := AutoMigrateAll(gdb); err != nil {
		return nil, err
	}

	log.Info("postgres connected and migrated")
	return gdb, nil
}

func AutoMigrateAll(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&types.AnalysisRun{},
		&types.AICallLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
