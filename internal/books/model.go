package books

import (
	"strings"
	"time"
)

const publishedOnLayout = "2006-01-02"

// Book is a catalog entry. Duplicate (name, author) pairs are allowed.
type Book struct {
	ID               int64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name             string   `gorm:"column:name;not null" json:"name"`
	Author           string   `gorm:"column:author;not null" json:"author"`
	Summary          *string  `gorm:"column:summary;type:text" json:"summary"`
	Rating           *float64 `gorm:"column:rating" json:"rating"`
	Pages            *int     `gorm:"column:pages" json:"pages"`
	PublishedOn      *string  `gorm:"column:published_on;size:10" json:"published_on"`
	CreatedAtSeconds int64    `gorm:"column:created_at_s;not null" json:"created_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (Book) TableName() string {
	return "books"
}

// RankedBook is a Book annotated with the number of notes written on it.
type RankedBook struct {
	Book
	NotesCount int64 `gorm:"column:notes_count" json:"notes_count"`
}

// BookInput is one element of a bulk insert.
type BookInput struct {
	Name        string   `json:"name"`
	Author      string   `json:"author"`
	Summary     *string  `json:"summary"`
	Rating      *float64 `json:"rating"`
	Pages       *int     `json:"pages"`
	PublishedOn *string  `json:"published_on"`
}

func (in BookInput) validate() (string, bool) {
	if strings.TrimSpace(in.Name) == "" {
		return "name is mandatory", false
	}
	if strings.TrimSpace(in.Author) == "" {
		return "author is mandatory", false
	}
	if in.PublishedOn != nil && *in.PublishedOn != "" {
		if _, err := time.Parse(publishedOnLayout, *in.PublishedOn); err != nil {
			return "published_on must be formatted as YYYY-MM-DD", false
		}
	}
	return "", true
}

func (in BookInput) toBook(createdAt time.Time) Book {
	book := Book{
		Name:             strings.TrimSpace(in.Name),
		Author:           strings.TrimSpace(in.Author),
		Summary:          nonEmpty(in.Summary),
		Rating:           in.Rating,
		Pages:            in.Pages,
		PublishedOn:      nonEmpty(in.PublishedOn),
		CreatedAtSeconds: createdAt.UTC().Unix(),
	}
	return book
}

func nonEmpty(value *string) *string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}

// Query filters a book listing. Name and Author match by case-sensitive containment.
type Query struct {
	Name   string
	Author string
	Limit  *int
	Offset *int
}

// ItemResult is the outcome of one element of a bulk operation.
type ItemResult struct {
	Index int   `json:"index"`
	ID    int64 `json:"id"`
	Err   error `json:"-"`
}

// BulkResult gathers per-element outcomes; earlier successes stay committed when a later element fails.
type BulkResult struct {
	Items []ItemResult
}

// Failed returns the elements that did not apply.
func (r BulkResult) Failed() []ItemResult {
	var failed []ItemResult
	for _, item := range r.Items {
		if item.Err != nil {
			failed = append(failed, item)
		}
	}
	return failed
}

// Succeeded reports whether every element applied.
func (r BulkResult) Succeeded() bool {
	return len(r.Failed()) == 0
}
