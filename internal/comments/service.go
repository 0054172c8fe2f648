package comments

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
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew    = "comments.service.new"
	opUpsert        = "comments.upsert"
	opGetByID       = "comments.get_by_id"
	opQuery         = "comments.query"
	opDelete        = "comments.delete"
	opDeleteByNote  = "comments.delete_by_note"
	messageNotFound = "comment not found"
)

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns the comments table.
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

// Upsert mirrors notes.Service.Upsert for (user, note, text).
func (s *Service) Upsert(ctx context.Context, input UpsertInput) (UpsertResult, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return UpsertResult{}, storage.BadRequest(opUpsert, "missing_text", "comment is mandatory")
	}
	db := s.db.WithContext(ctx)

	if input.ID != nil {
		var existing Comment
		err := db.Where("id = ?", *input.ID).Take(&existing).Error
		switch {
		case err == nil:
			if existing.UserID != input.UserID {
				return UpsertResult{}, storage.Forbidden(opUpsert, "comment belongs to another user")
			}
			if existing.NoteID != input.NoteID {
				return UpsertResult{}, storage.BadRequest(opUpsert, "note_mismatch", "comment does not belong to the given note")
			}
			if err := db.Model(&Comment{}).Where("id = ?", existing.ID).Update("comment", text).Error; err != nil {
				s.logError(opUpsert, "comment_update_failed", err, zap.Int64("comment_id", existing.ID))
				return UpsertResult{}, storage.Classify(opUpsert, err)
			}
			return UpsertResult{CommentID: existing.ID}, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			s.logError(opUpsert, "comment_select_failed", err, zap.Int64("comment_id", *input.ID))
			return UpsertResult{}, storage.Classify(opUpsert, err)
		}
	}

	comment := Comment{
		UserID:           input.UserID,
		NoteID:           input.NoteID,
		Text:             text,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := db.Create(&comment).Error; err != nil {
		s.logError(opUpsert, "comment_insert_failed", err,
			zap.Int64("user_id", input.UserID),
			zap.Int64("note_id", input.NoteID))
		return UpsertResult{}, storage.Classify(opUpsert, err)
	}
	return UpsertResult{CommentID: comment.ID, Created: true}, nil
}

// GetByID returns a single comment with its author name.
func (s *Service) GetByID(ctx context.Context, id int64) (CommentView, error) {
	var comment CommentView
	err := s.joined(ctx).Where("c.id = ?", id).Take(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CommentView{}, storage.NotFound(opGetByID, messageNotFound)
	}
	if err != nil {
		s.logError(opGetByID, "query_failed", err, zap.Int64("comment_id", id))
		return CommentView{}, storage.Classify(opGetByID, err)
	}
	return comment, nil
}

// Query lists comments in insertion order, newest first.
func (s *Service) Query(ctx context.Context, query Query) ([]CommentView, error) {
	statement := s.joined(ctx)
	if query.NoteID != nil {
		statement = statement.Where("c.note_id = ?", *query.NoteID)
	}
	if query.UserID != nil {
		statement = statement.Where("c.user_id = ?", *query.UserID)
	}
	if query.ViewerID != nil {
		statement = statement.
			Joins("LEFT JOIN book_notes n ON n.id = c.note_id").
			Where("(n.id IS NULL OR n.is_private = ? OR n.user_id = ?)", false, *query.ViewerID)
	}
	statement = storage.Page{Limit: query.Limit, Offset: query.Offset}.Apply(statement.Order("c.id DESC"))

	comments := make([]CommentView, 0)
	if err := statement.Find(&comments).Error; err != nil {
		s.logError(opQuery, "query_failed", err)
		return nil, storage.Classify(opQuery, err)
	}
	return comments, nil
}

// Delete removes one comment.
func (s *Service) Delete(ctx context.Context, id int64) error {
	deletion := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Comment{})
	if deletion.Error != nil {
		s.logError(opDelete, "delete_failed", deletion.Error, zap.Int64("comment_id", id))
		return storage.Classify(opDelete, deletion.Error)
	}
	if deletion.RowsAffected == 0 {
		return storage.NotFound(opDelete, messageNotFound)
	}
	return nil
}

// DeleteByNote removes every comment of a note.
func (s *Service) DeleteByNote(ctx context.Context, noteID int64) error {
	return s.DeleteByNoteTx(s.db.WithContext(ctx), noteID)
}

// DeleteByNoteTx is the note-delete cascade hook; tx is the caller's transaction.
func (s *Service) DeleteByNoteTx(tx *gorm.DB, noteID int64) error {
	if err := tx.Where("note_id = ?", noteID).Delete(&Comment{}).Error; err != nil {
		s.logError(opDeleteByNote, "delete_failed", err, zap.Int64("note_id", noteID))
		return storage.Classify(opDeleteByNote, err)
	}
	return nil
}

func (s *Service) joined(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("comments AS c").
		Select("c.id, c.user_id, c.note_id, c.comment, c.created_at_s, u.fullname AS user").
		Joins("JOIN users u ON u.id = c.user_id")
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
	s.loggerOrDefault().Error("comments service error", attrs...)
}
