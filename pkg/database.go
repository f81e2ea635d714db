package pkg

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/quizforge/assessment-engine/internal/config"
	"github.com/quizforge/assessment-engine/internal/models"
)

// InitDatabase opens the Postgres connection and runs migrations.
// TranslateError must stay on: the attempt repository relies on
// gorm.ErrDuplicatedKey to detect a lost concurrent-start race.
func InitDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormLogLevel := logger.Warn
	if cfg.Environment == "development" {
		gormLogLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(gormLogLevel),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Assessment{},
		&models.Question{},
		&models.AssessmentAttempt{},
		&models.QuestionRecord{},
	); err != nil {
		return err
	}

	// Partial unique index enforcing at most one in-progress attempt per
	// learner per assessment. AutoMigrate cannot express the WHERE clause.
	return db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_one_active
		ON assessment_attempts (assessment_id, learner_id)
		WHERE status = 'in_progress'
	`).Error
}
