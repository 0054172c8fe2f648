package notes

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/bookclub/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingCascade  = errors.New("comment cascade is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew     = "notes.service.new"
	opUpsert         = "notes.upsert"
	opGetByID        = "notes.get_by_id"
	opQuery          = "notes.query"
	opDelete         = "notes.delete"
	opSetVisibility  = "notes.set_visibility"
	opBookmark       = "notes.bookmark"
	opListBookmarks  = "notes.list_bookmarks"
	opUnbookmark     = "notes.unbookmark"
	opIsBookmarked   = "notes.is_bookmarked"
	messageNotFound  = "note not found"
	messageForbidden = "note belongs to another user"
)

// CommentCascade removes the comments of a note inside the caller's transaction.
type CommentCascade interface {
	DeleteByNoteTx(tx *gorm.DB, noteID int64) error
}

type ServiceConfig struct {
	Database *gorm.DB
	Comments CommentCascade
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns book_notes and saved_notes.
type Service struct {
	db       *gorm.DB
	comments CommentCascade
	clock    func() time.Time
	logger   *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, storage.NewError(storage.KindStorageFailure, opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Comments == nil {
		return nil, storage.NewError(storage.KindStorageFailure, opServiceNew, "missing_comment_cascade", errMissingCascade)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:       cfg.Database,
		comments: cfg.Comments,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Upsert updates the note named by input.ID when it exists and inserts a new row otherwise.
// The referenced book and user are expected to have passed the existence checker.
func (s *Service) Upsert(ctx context.Context, input UpsertInput) (UpsertResult, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return UpsertResult{}, storage.BadRequest(opUpsert, "missing_text", "note is mandatory")
	}
	if input.Visibility != "" {
		if _, err := ParseVisibility(string(input.Visibility)); err != nil {
			return UpsertResult{}, storage.BadRequest(opUpsert, "invalid_visibility", err.Error())
		}
	}

	now := s.clock().UTC().Unix()
	db := s.db.WithContext(ctx)

	if input.ID != nil {
		var existing Note
		err := db.Where("id = ?", *input.ID).Take(&existing).Error
		switch {
		case err == nil:
			return s.update(db, existing, input, text, now)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			s.logError(opUpsert, "note_select_failed", err, zap.Int64("note_id", *input.ID))
			return UpsertResult{}, storage.Classify(opUpsert, err)
		}
	}

	note := Note{
		UserID:            input.UserID,
		BookID:            input.BookID,
		Text:              text,
		CreatedAtSeconds:  now,
		ModifiedAtSeconds: now,
		IsPrivate:         input.Visibility.IsPrivate(),
	}
	if err := db.Create(&note).Error; err != nil {
		s.logError(opUpsert, "note_insert_failed", err,
			zap.Int64("user_id", input.UserID),
			zap.Int64("book_id", input.BookID))
		return UpsertResult{}, storage.Classify(opUpsert, err)
	}
	return UpsertResult{NoteID: note.ID, Created: true}, nil
}

func (s *Service) update(db *gorm.DB, existing Note, input UpsertInput, text string, now int64) (UpsertResult, error) {
	if existing.UserID != input.UserID {
		return UpsertResult{}, storage.Forbidden(opUpsert, messageForbidden)
	}
	if existing.BookID != input.BookID {
		return UpsertResult{}, storage.BadRequest(opUpsert, "book_mismatch", "note does not belong to the given book")
	}
	updates := map[string]any{
		"notes":         text,
		"modified_at_s": now,
	}
	if input.Visibility != "" {
		updates["is_private"] = input.Visibility.IsPrivate()
	}
	if err := db.Model(&Note{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		s.logError(opUpsert, "note_update_failed", err, zap.Int64("note_id", existing.ID))
		return UpsertResult{}, storage.Classify(opUpsert, err)
	}
	return UpsertResult{NoteID: existing.ID}, nil
}

// GetByID reads a note through the view regardless of its visibility.
func (s *Service) GetByID(ctx context.Context, id int64) (NoteView, error) {
	var note NoteView
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NoteView{}, storage.NotFound(opGetByID, messageNotFound)
	}
	if err != nil {
		s.logError(opGetByID, "query_failed", err, zap.Int64("note_id", id))
		return NoteView{}, storage.Classify(opGetByID, err)
	}
	return note, nil
}

// Query lists notes newest modification first.
//
// Without filters, or with only a book filter, only public notes are returned.
// A user filter returns every note of that user when no viewer is given or the
// viewer is that user, and only the public ones otherwise. With both filters the
// rows are narrowed to the book, and a missing viewer sees public notes only.
func (s *Service) Query(ctx context.Context, query Query) ([]NoteView, error) {
	statement := s.db.WithContext(ctx).Model(&NoteView{})
	switch {
	case query.BookID != nil && query.UserID != nil:
		statement = statement.Where("book_id = ? AND user_id = ?", *query.BookID, *query.UserID)
		if query.ViewerID == nil || *query.ViewerID != *query.UserID {
			statement = statement.Where("is_private = ?", false)
		}
	case query.BookID != nil:
		statement = statement.Where("book_id = ? AND is_private = ?", *query.BookID, false)
	case query.UserID != nil:
		statement = statement.Where("user_id = ?", *query.UserID)
		if query.ViewerID != nil && *query.ViewerID != *query.UserID {
			statement = statement.Where("is_private = ?", false)
		}
	default:
		statement = statement.Where("is_private = ?", false)
	}
	statement = storage.Page{Limit: query.Limit, Offset: query.Offset}.
		Apply(statement.Order("modified_at_s DESC").Order("id DESC"))

	notes := make([]NoteView, 0)
	if err := statement.Find(&notes).Error; err != nil {
		s.logError(opQuery, "query_failed", err)
		return nil, storage.Classify(opQuery, err)
	}
	return notes, nil
}

// Delete removes the note together with its comments and bookmarks in one transaction.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Note
		err := tx.Where("id = ?", id).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return storage.NotFound(opDelete, messageNotFound)
		}
		if err != nil {
			s.logError(opDelete, "note_select_failed", err, zap.Int64("note_id", id))
			return storage.Classify(opDelete, err)
		}
		if err := s.comments.DeleteByNoteTx(tx, id); err != nil {
			s.logError(opDelete, "comment_cascade_failed", err, zap.Int64("note_id", id))
			return storage.Classify(opDelete, err)
		}
		if err := tx.Where("note_id = ?", id).Delete(&SavedNote{}).Error; err != nil {
			s.logError(opDelete, "bookmark_cascade_failed", err, zap.Int64("note_id", id))
			return storage.Classify(opDelete, err)
		}
		if err := tx.Where("id = ?", id).Delete(&Note{}).Error; err != nil {
			s.logError(opDelete, "note_delete_failed", err, zap.Int64("note_id", id))
			return storage.Classify(opDelete, err)
		}
		return nil
	})
}

// SetVisibility validates the flag token before any row is touched.
func (s *Service) SetVisibility(ctx context.Context, id int64, flag string) error {
	visibility, err := ParseVisibility(flag)
	if err != nil {
		return storage.BadRequest(opSetVisibility, "invalid_flag", err.Error())
	}
	update := s.db.WithContext(ctx).Model(&Note{}).Where("id = ?", id).Updates(map[string]any{
		"is_private":    visibility.IsPrivate(),
		"modified_at_s": s.clock().UTC().Unix(),
	})
	if update.Error != nil {
		s.logError(opSetVisibility, "update_failed", update.Error, zap.Int64("note_id", id))
		return storage.Classify(opSetVisibility, update.Error)
	}
	if update.RowsAffected == 0 {
		return storage.NotFound(opSetVisibility, messageNotFound)
	}
	return nil
}

// Bookmark saves a note for later. Saving the same note twice is a constraint violation.
func (s *Service) Bookmark(ctx context.Context, userID, noteID int64) error {
	saved := SavedNote{
		UserID:           userID,
		NoteID:           noteID,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&saved).Error; err != nil {
		classified := storage.Classify(opBookmark, err)
		if !storage.IsKind(classified, storage.KindConstraintViolation) {
			s.logError(opBookmark, "insert_failed", err,
				zap.Int64("user_id", userID),
				zap.Int64("note_id", noteID))
		}
		return classified
	}
	return nil
}

// ListBookmarks returns the user's saved notes, most recently saved first.
// Notes that turned private since being saved stay hidden unless the user owns them.
func (s *Service) ListBookmarks(ctx context.Context, userID int64) ([]NoteView, error) {
	saved := make([]NoteView, 0)
	err := s.db.WithContext(ctx).
		Table("saved_notes AS s").
		Select("v.*").
		Joins("JOIN book_notes_vw v ON v.id = s.note_id").
		Where("s.user_id = ?", userID).
		Where("(v.is_private = ? OR v.user_id = ?)", false, userID).
		Order("s.created_at_s DESC").
		Order("s.id DESC").
		Scan(&saved).Error
	if err != nil {
		s.logError(opListBookmarks, "query_failed", err, zap.Int64("user_id", userID))
		return nil, storage.Classify(opListBookmarks, err)
	}
	return saved, nil
}

// Unbookmark removes a saved note; not_found when it was never saved.
func (s *Service) Unbookmark(ctx context.Context, userID, noteID int64) error {
	deletion := s.db.WithContext(ctx).
		Where("user_id = ? AND note_id = ?", userID, noteID).
		Delete(&SavedNote{})
	if deletion.Error != nil {
		s.logError(opUnbookmark, "delete_failed", deletion.Error,
			zap.Int64("user_id", userID),
			zap.Int64("note_id", noteID))
		return storage.Classify(opUnbookmark, deletion.Error)
	}
	if deletion.RowsAffected == 0 {
		return storage.NotFound(opUnbookmark, "note is not saved")
	}
	return nil
}

// IsBookmarked reports whether the user saved the note.
func (s *Service) IsBookmarked(ctx context.Context, userID, noteID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&SavedNote{}).
		Where("user_id = ? AND note_id = ?", userID, noteID).
		Count(&count).Error
	if err != nil {
		s.logError(opIsBookmarked, "query_failed", err,
			zap.Int64("user_id", userID),
			zap.Int64("note_id", noteID))
		return false, storage.Classify(opIsBookmarked, err)
	}
	return count > 0, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
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
	s.loggerOrDefault().Error("notes service error", attrs...)
}
