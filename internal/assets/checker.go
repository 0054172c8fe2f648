// Package assets answers whether referenced rows exist before a mutation is
// allowed to point at them. The schema carries no foreign keys, so this check is
// the only referential integrity the store has.
package assets

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/bookclub/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Kind names a checkable entity.
type Kind string

const (
	KindUser    Kind = "user"
	KindBook    Kind = "book"
	KindNote    Kind = "note"
	KindComment Kind = "comment"
)

var tables = map[Kind]string{
	KindUser:    "users",
	KindBook:    "books",
	KindNote:    "book_notes",
	KindComment: "comments",
}

const opExists = "assets.exists"

var errMissingDatabase = errors.New("database handle is required")

// Status is the typed result of a pre-flight check.
type Status int

const (
	StatusExists Status = iota
	StatusNotFound
	StatusCheckFailed
)

func (s Status) String() string {
	switch s {
	case StatusExists:
		return "exists"
	case StatusNotFound:
		return "not_found"
	default:
		return "check_failed"
	}
}

// Ref points at one entity.
type Ref struct {
	Kind Kind
	ID   int64
}

// Outcome reports the first missing reference, if any.
type Outcome struct {
	Status  Status
	Missing Ref
}

// Message describes a missing reference the way clients see it.
func (o Outcome) Message() string {
	if o.Status != StatusNotFound {
		return ""
	}
	return fmt.Sprintf("%s does not exist", o.Missing.Kind)
}

// Checker runs single-row existence lookups.
type Checker struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewChecker constructs a Checker over the shared handle.
func NewChecker(db *gorm.DB, logger *zap.Logger) (*Checker, error) {
	if db == nil {
		return nil, storage.NewError(storage.KindStorageFailure, "assets.checker.new", "missing_database", errMissingDatabase)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{db: db, logger: logger}, nil
}

// Exists reports whether a row of kind with id exists. A storage failure is
// returned as an error and never as false.
func (c *Checker) Exists(ctx context.Context, kind Kind, id int64) (bool, error) {
	table, ok := tables[kind]
	if !ok {
		return false, storage.BadRequest(opExists, "unknown_kind", fmt.Sprintf("unknown asset kind %q", kind))
	}
	var count int64
	err := c.db.WithContext(ctx).
		Table(table).
		Where("id = ?", id).
		Count(&count).Error
	if err != nil {
		c.logger.Error("asset existence check failed",
			zap.String("operation", opExists),
			zap.String("kind", string(kind)),
			zap.Int64("id", id),
			zap.Error(err))
		return false, storage.NewError(storage.KindStorageFailure, opExists, "check_failed", err)
	}
	return count > 0, nil
}

// Check evaluates refs in order and stops at the first missing one.
func (c *Checker) Check(ctx context.Context, refs ...Ref) (Outcome, error) {
	for _, ref := range refs {
		exists, err := c.Exists(ctx, ref.Kind, ref.ID)
		if err != nil {
			return Outcome{Status: StatusCheckFailed, Missing: ref}, err
		}
		if !exists {
			return Outcome{Status: StatusNotFound, Missing: ref}, nil
		}
	}
	return Outcome{Status: StatusExists}, nil
}
