package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationCreateBookNotesView = "2026-10-01_create_book_notes_view"

	// BookNotesView pre-joins note rows with their author and book display fields.
	BookNotesView = "book_notes_vw"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func migrationDefinitions() []migrationDefinition {
	return []migrationDefinition{
		{name: migrationCreateBookNotesView, apply: createBookNotesView},
	}
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range migrationDefinitions() {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Transaction(migration.apply); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func createBookNotesView(db *gorm.DB) error {
	if err := db.Exec("DROP VIEW IF EXISTS " + BookNotesView).Error; err != nil {
		return err
	}
	return db.Exec(`CREATE VIEW ` + BookNotesView + ` AS
SELECT
	bn.id AS id,
	bn.user_id AS user_id,
	bn.book_id AS book_id,
	bn.notes AS notes,
	bn.created_at_s AS created_at_s,
	bn.modified_at_s AS modified_at_s,
	bn.is_private AS is_private,
	COALESCE(u.fullname, '') AS user,
	COALESCE(b.name, '') AS book_name,
	COALESCE(b.author, '') AS author,
	DATE(bn.modified_at_s, 'unixepoch') AS short_date
FROM book_notes bn
LEFT JOIN users u ON u.id = bn.user_id
LEFT JOIN books b ON b.id = bn.book_id`).Error
}
