package notes

import (
	"errors"
	"fmt"
	"strings"
)

// Visibility is the binary listing flag of a note.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// ErrInvalidVisibility indicates a flag token other than public or private.
var ErrInvalidVisibility = errors.New("notes: visibility must be public or private")

// ParseVisibility accepts exactly the two visibility tokens.
func ParseVisibility(token string) (Visibility, error) {
	switch Visibility(token) {
	case VisibilityPublic, VisibilityPrivate:
		return Visibility(token), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVisibility, strings.TrimSpace(token))
	}
}

// IsPrivate maps the flag onto the stored column.
func (v Visibility) IsPrivate() bool {
	return v == VisibilityPrivate
}

func visibilityOf(isPrivate bool) Visibility {
	if isPrivate {
		return VisibilityPrivate
	}
	return VisibilityPublic
}

// Note is the writable book_notes row.
type Note struct {
	ID                int64  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID            int64  `gorm:"column:user_id;not null;index:idx_book_notes_user"`
	BookID            int64  `gorm:"column:book_id;not null;index:idx_book_notes_book"`
	Text              string `gorm:"column:notes;type:text;not null"`
	CreatedAtSeconds  int64  `gorm:"column:created_at_s;not null"`
	ModifiedAtSeconds int64  `gorm:"column:modified_at_s;not null;index:idx_book_notes_modified"`
	IsPrivate         bool   `gorm:"column:is_private;not null;default:false"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "book_notes"
}

// NoteView is the read projection; every note read goes through book_notes_vw.
type NoteView struct {
	ID                int64  `gorm:"column:id" json:"id"`
	UserID            int64  `gorm:"column:user_id" json:"user_id"`
	BookID            int64  `gorm:"column:book_id" json:"book_id"`
	Text              string `gorm:"column:notes" json:"notes"`
	CreatedAtSeconds  int64  `gorm:"column:created_at_s" json:"created_at_s"`
	ModifiedAtSeconds int64  `gorm:"column:modified_at_s" json:"modified_at_s"`
	IsPrivate         bool   `gorm:"column:is_private" json:"is_private"`
	User              string `gorm:"column:user" json:"user"`
	BookName          string `gorm:"column:book_name" json:"book_name"`
	Author            string `gorm:"column:author" json:"author"`
	ShortDate         string `gorm:"column:short_date" json:"short_date"`
}

// TableName binds reads to the joined view.
func (NoteView) TableName() string {
	return "book_notes_vw"
}

// Visibility reports the note's flag as a token.
func (v NoteView) Visibility() Visibility {
	return visibilityOf(v.IsPrivate)
}

// SavedNote is a user's bookmark on a note; the pair is unique.
type SavedNote struct {
	ID               int64 `gorm:"column:id;primaryKey;autoIncrement"`
	UserID           int64 `gorm:"column:user_id;not null;uniqueIndex:idx_saved_notes_user_note,priority:1"`
	NoteID           int64 `gorm:"column:note_id;not null;uniqueIndex:idx_saved_notes_user_note,priority:2;index:idx_saved_notes_note"`
	CreatedAtSeconds int64 `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (SavedNote) TableName() string {
	return "saved_notes"
}

// UpsertInput creates a note when ID is nil or unknown, and updates it otherwise.
// An empty Visibility keeps the stored flag on update and means public on insert.
type UpsertInput struct {
	ID         *int64
	UserID     int64
	BookID     int64
	Text       string
	Visibility Visibility
}

// UpsertResult identifies the row written.
type UpsertResult struct {
	NoteID  int64
	Created bool
}

// Query selects notes. BookID and UserID are optional filters; ViewerID is the
// authenticated caller. Another viewer never sees private notes.
type Query struct {
	BookID   *int64
	UserID   *int64
	ViewerID *int64
	Limit    *int
	Offset   *int
}
