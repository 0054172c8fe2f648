package comments

// Comment is the writable comments row. Comments have no modification time.
type Comment struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID           int64  `gorm:"column:user_id;not null;index:idx_comments_user"`
	NoteID           int64  `gorm:"column:note_id;not null;index:idx_comments_note"`
	Text             string `gorm:"column:comment;type:text;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "comments"
}

// CommentView is a comment joined with its author's display name.
type CommentView struct {
	ID               int64  `gorm:"column:id" json:"id"`
	UserID           int64  `gorm:"column:user_id" json:"user_id"`
	NoteID           int64  `gorm:"column:note_id" json:"note_id"`
	Text             string `gorm:"column:comment" json:"comment"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s" json:"created_at_s"`
	User             string `gorm:"column:user" json:"user"`
}

// UpsertInput creates a comment when ID is nil or unknown, and updates its text otherwise.
type UpsertInput struct {
	ID     *int64
	UserID int64
	NoteID int64
	Text   string
}

// UpsertResult identifies the row written.
type UpsertResult struct {
	CommentID int64
	Created   bool
}

// Query selects comments by optional note and author filters. When ViewerID
// is set, comments on another user's private note are left out.
type Query struct {
	NoteID   *int64
	UserID   *int64
	ViewerID *int64
	Limit    *int
	Offset   *int
}
