package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/bookclub/internal/books"
	"github.com/MarcoPoloResearchLab/bookclub/internal/storage"
	"github.com/gin-gonic/gin"
)

type addBooksRequest struct {
	Data []books.BookInput `json:"data"`
}

type deleteBooksRequest struct {
	BookIDs []int64 `json:"bookIds"`
}

type bulkItemPayload struct {
	Index int    `json:"index"`
	ID    int64  `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

func (h *httpHandler) handleAddBooks(c *gin.Context) {
	var request addBooksRequest
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Data) == 0 {
		respondFailure(c, http.StatusBadRequest, "data is mandatory")
		return
	}
	result := h.books.BulkInsert(c.Request.Context(), request.Data)
	respondBulk(c, result, "Books added successfully", "Some books could not be added")
}

func (h *httpHandler) handleDeleteBooks(c *gin.Context) {
	var request deleteBooksRequest
	if err := c.ShouldBindJSON(&request); err != nil || len(request.BookIDs) == 0 {
		respondFailure(c, http.StatusBadRequest, "bookIds is mandatory")
		return
	}
	result := h.books.BulkDelete(c.Request.Context(), request.BookIDs)
	respondBulk(c, result, "Books deleted successfully", "Some books could not be deleted")
}

// respondBulk reports per-element outcomes. When every element failed the
// first failure decides the status.
func respondBulk(c *gin.Context, result books.BulkResult, successMessage, partialMessage string) {
	items := make([]bulkItemPayload, 0, len(result.Items))
	succeeded := 0
	for _, item := range result.Items {
		payload := bulkItemPayload{Index: item.Index, ID: item.ID}
		if item.Err != nil {
			payload.Error = messageInternal
			var classified *storage.Error
			if errors.As(item.Err, &classified) && classified.Kind() != storage.KindStorageFailure {
				payload.Error = classified.Message()
			}
		} else {
			succeeded++
		}
		items = append(items, payload)
	}

	failed := result.Failed()
	if len(failed) > 0 && succeeded == 0 {
		status := statusFor(storage.KindOf(failed[0].Err))
		c.JSON(status, gin.H{
			"statusCode": status,
			"message":    partialMessage,
			"data":       items,
			"count":      0,
		})
		return
	}
	message := successMessage
	if len(failed) > 0 {
		message = partialMessage
	}
	respondData(c, message, items, succeeded)
}

func (h *httpHandler) handleGetBook(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	book, err := h.books.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, "Book found", book, 1)
}

func (h *httpHandler) handleListBooks(c *gin.Context) {
	limit, offset, ok := parsePage(c)
	if !ok {
		return
	}
	found, err := h.books.Query(c.Request.Context(), books.Query{
		Name:   c.Query("name"),
		Author: c.Query("author"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, "Books found", found, len(found))
}

func (h *httpHandler) handleTopBooks(c *gin.Context) {
	ranked, err := h.books.TopBooks(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, "Top books found", ranked, len(ranked))
}
