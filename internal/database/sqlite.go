package database

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/bookclub/internal/books"
	"github.com/MarcoPoloResearchLab/bookclub/internal/comments"
	"github.com/MarcoPoloResearchLab/bookclub/internal/notes"
	"github.com/MarcoPoloResearchLab/bookclub/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenSQLite opens the process-wide database handle and brings the schema up to date.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(schemaModels()...); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

func schemaModels() []any {
	return []any{
		&users.User{},
		&users.LoginRecord{},
		&users.DeactivatedUser{},
		&books.Book{},
		&notes.Note{},
		&notes.SavedNote{},
		&comments.Comment{},
		&migrationRecord{},
	}
}
