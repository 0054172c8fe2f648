package search

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/bookclub/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const opSearch = "search.search"

var errMissingDatabase = errors.New("database handle is required")

// Result kinds.
const (
	TypeBook = "book"
	TypeNote = "note"
)

// Result is one row of the union. Field meaning depends on Type:
// books carry (name, "", "", author, ""), notes carry
// (text, note author, book name, book author, modified date).
type Result struct {
	Type   string `gorm:"column:type" json:"type"`
	Field1 string `gorm:"column:field1" json:"field1"`
	Field2 string `gorm:"column:field2" json:"field2"`
	Field3 string `gorm:"column:field3" json:"field3"`
	Field4 string `gorm:"column:field4" json:"field4"`
	Field5 string `gorm:"column:field5" json:"field5"`
}

const unionQuery = `
SELECT 'book' AS type, name AS field1, '' AS field2, '' AS field3, author AS field4, '' AS field5
FROM books
WHERE instr(LOWER(name), LOWER(?)) > 0 OR instr(LOWER(author), LOWER(?)) > 0
UNION
SELECT 'note' AS type, notes AS field1, user AS field2, book_name AS field3, author AS field4, short_date AS field5
FROM book_notes_vw
WHERE is_private = ? AND instr(LOWER(notes), LOWER(?)) > 0`

type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) (*Service, error) {
	if db == nil {
		return nil, storage.NewError(storage.KindStorageFailure, "search.service.new", "missing_database", errMissingDatabase)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, logger: logger}, nil
}

// Search matches keyword case-insensitively against book names, book authors and public note text.
// Both sides are folded by the engine's LOWER, which only folds ASCII letters.
func (s *Service) Search(ctx context.Context, keyword string) ([]Result, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, storage.BadRequest(opSearch, "missing_keyword", "search value is mandatory")
	}
	results := make([]Result, 0)
	err := s.db.WithContext(ctx).
		Raw(unionQuery, keyword, keyword, false, keyword).
		Scan(&results).Error
	if err != nil {
		s.logger.Error("search service error",
			zap.String("operation", opSearch),
			zap.String("reason", "query_failed"),
			zap.Error(err))
		return nil, storage.Classify(opSearch, err)
	}
	return results, nil
}
