package books

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/bookclub/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew = "books.service.new"
	opBulkInsert = "books.bulk_insert"
	opGetByID    = "books.get_by_id"
	opQuery      = "books.query"
	opTopBooks   = "books.top_books"
	opBulkDelete = "books.bulk_delete"

	// TopBooksLimit caps the ranking view.
	TopBooksLimit = 50

	messageNotFound = "book not found"
)

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns the books table.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, storage.NewError(storage.KindStorageFailure, opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// BulkInsert inserts every element with its own statement. A failing element
// is recorded and the remaining elements are still attempted.
func (s *Service) BulkInsert(ctx context.Context, inputs []BookInput) BulkResult {
	result := BulkResult{Items: make([]ItemResult, 0, len(inputs))}
	createdAt := s.clock()
	for index, input := range inputs {
		item := ItemResult{Index: index}
		if message, ok := input.validate(); !ok {
			item.Err = storage.BadRequest(opBulkInsert, "invalid_book", message)
			result.Items = append(result.Items, item)
			continue
		}
		book := input.toBook(createdAt)
		if err := s.db.WithContext(ctx).Create(&book).Error; err != nil {
			s.logError(opBulkInsert, "insert_failed", err, zap.Int("index", index))
			item.Err = storage.Classify(opBulkInsert, err)
		} else {
			item.ID = book.ID
		}
		result.Items = append(result.Items, item)
	}
	return result
}

// GetByID returns the book or a not_found error.
func (s *Service) GetByID(ctx context.Context, id int64) (Book, error) {
	var book Book
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Book{}, storage.NotFound(opGetByID, messageNotFound)
	}
	if err != nil {
		s.logError(opGetByID, "query_failed", err, zap.Int64("book_id", id))
		return Book{}, storage.Classify(opGetByID, err)
	}
	return book, nil
}

// Query lists books newest first, filtered by optional name/author containment.
func (s *Service) Query(ctx context.Context, query Query) ([]Book, error) {
	statement := s.db.WithContext(ctx).Model(&Book{})
	if query.Name != "" {
		statement = statement.Where("instr(name, ?) > 0", query.Name)
	}
	if query.Author != "" {
		statement = statement.Where("instr(author, ?) > 0", query.Author)
	}
	statement = storage.Page{Limit: query.Limit, Offset: query.Offset}.Apply(statement.Order("id DESC"))

	books := make([]Book, 0)
	if err := statement.Find(&books).Error; err != nil {
		s.logError(opQuery, "query_failed", err)
		return nil, storage.Classify(opQuery, err)
	}
	return books, nil
}

// TopBooks ranks books by note count, ties broken by name.
func (s *Service) TopBooks(ctx context.Context) ([]RankedBook, error) {
	ranked := make([]RankedBook, 0)
	err := s.db.WithContext(ctx).
		Table("books AS b").
		Select("b.*, COUNT(bn.id) AS notes_count").
		Joins("JOIN book_notes bn ON bn.book_id = b.id").
		Group("b.id").
		Having("COUNT(bn.id) > 0").
		Order("notes_count DESC, b.name ASC").
		Limit(TopBooksLimit).
		Scan(&ranked).Error
	if err != nil {
		s.logError(opTopBooks, "query_failed", err)
		return nil, storage.Classify(opTopBooks, err)
	}
	return ranked, nil
}

// BulkDelete removes each id independently; missing ids are reported as not_found.
func (s *Service) BulkDelete(ctx context.Context, ids []int64) BulkResult {
	result := BulkResult{Items: make([]ItemResult, 0, len(ids))}
	for index, id := range ids {
		item := ItemResult{Index: index, ID: id}
		deletion := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Book{})
		switch {
		case deletion.Error != nil:
			s.logError(opBulkDelete, "delete_failed", deletion.Error, zap.Int64("book_id", id))
			item.Err = storage.Classify(opBulkDelete, deletion.Error)
		case deletion.RowsAffected == 0:
			item.Err = storage.NotFound(opBulkDelete, messageNotFound)
		}
		result.Items = append(result.Items, item)
	}
	return result
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("books service error", attrs...)
}
