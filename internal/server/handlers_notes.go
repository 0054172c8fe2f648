package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/bookclub/internal/assets"
	"github.com/MarcoPoloResearchLab/bookclub/internal/auth"
	"github.com/MarcoPoloResearchLab/bookclub/internal/notes"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const messageNoteNotFound = "Book note not found"

type upsertNoteRequest struct {
	ID         *int64 `json:"id"`
	UserID     int64  `json:"userId"`
	BookID     int64  `json:"bookId"`
	Notes      string `json:"notes"`
	Visibility string `json:"visibility"`
}

func (h *httpHandler) handleUpsertNote(c *gin.Context) {
	identity, _ := identityFrom(c)
	var request upsertNoteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondFailure(c, http.StatusBadRequest, "invalid request body")
		return
	}
	switch {
	case request.UserID <= 0:
		respondFailure(c, http.StatusBadRequest, "userId is mandatory")
		return
	case request.BookID <= 0:
		respondFailure(c, http.StatusBadRequest, "bookId is mandatory")
		return
	case request.UserID != identity.UserID:
		respondFailure(c, http.StatusForbidden, messageForbidden)
		return
	}

	if !h.checkAssets(c, assets.Ref{Kind: assets.KindBook, ID: request.BookID}, assets.Ref{Kind: assets.KindUser, ID: request.UserID}) {
		return
	}

	result, err := h.notes.Upsert(c.Request.Context(), notes.UpsertInput{
		ID:         request.ID,
		UserID:     request.UserID,
		BookID:     request.BookID,
		Text:       request.Notes,
		Visibility: notes.Visibility(request.Visibility),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	message := "Book note updated successfully"
	if result.Created {
		message = "Book note added successfully"
	}
	respondOK(c, message, gin.H{"data": gin.H{"id": result.NoteID}})
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	identity, _ := identityFrom(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	note, ok := h.visibleNote(c, identity, id)
	if !ok {
		return
	}
	respondData(c, "Book note found", note, 1)
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	identity, _ := identityFrom(c)
	bookID, ok := parseOptionalID(c, "bookId")
	if !ok {
		return
	}
	userID, ok := parseOptionalID(c, "userId")
	if !ok {
		return
	}
	limit, offset, ok := parsePage(c)
	if !ok {
		return
	}
	viewer := identity.UserID
	found, err := h.notes.Query(c.Request.Context(), notes.Query{
		BookID:   bookID,
		UserID:   userID,
		ViewerID: &viewer,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, "Book notes found", found, len(found))
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	identity, _ := identityFrom(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if _, ok := h.ownedNote(c, identity, id); !ok {
		return
	}
	if err := h.notes.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Book note deleted successfully", nil)
}

func (h *httpHandler) handleSetVisibility(c *gin.Context) {
	identity, _ := identityFrom(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	flag := c.Param("flag")
	if _, err := notes.ParseVisibility(flag); err != nil {
		respondFailure(c, http.StatusBadRequest, err.Error())
		return
	}
	if _, ok := h.ownedNote(c, identity, id); !ok {
		return
	}
	if err := h.notes.SetVisibility(c.Request.Context(), id, flag); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Book note visibility updated", gin.H{"data": gin.H{"id": id, "visibility": flag}})
}

func (h *httpHandler) handleSaveNote(c *gin.Context) {
	identity, _ := identityFrom(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if !h.checkAssets(c, assets.Ref{Kind: assets.KindNote, ID: id}) {
		return
	}
	note, ok := h.visibleNote(c, identity, id)
	if !ok {
		return
	}
	if err := h.notes.Bookmark(c.Request.Context(), identity.UserID, id); err != nil {
		respondError(c, err)
		return
	}
	h.notifyOwner(ActivityEventNoteSaved, note.UserID, identity.UserID, note.ID, 0)
	respondOK(c, "Book note saved", nil)
}

func (h *httpHandler) handleUnsaveNote(c *gin.Context) {
	identity, _ := identityFrom(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if !h.checkAssets(c, assets.Ref{Kind: assets.KindNote, ID: id}) {
		return
	}
	if err := h.notes.Unbookmark(c.Request.Context(), identity.UserID, id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Book note removed from saved notes", nil)
}

func (h *httpHandler) handleIsNoteSaved(c *gin.Context) {
	identity, _ := identityFrom(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	saved, err := h.notes.IsBookmarked(c.Request.Context(), identity.UserID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", gin.H{"data": gin.H{"saved": saved}})
}

func (h *httpHandler) handleListSavedNotes(c *gin.Context) {
	identity, _ := identityFrom(c)
	saved, err := h.notes.ListBookmarks(c.Request.Context(), identity.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, "Saved notes found", saved, len(saved))
}

// visibleNote loads a note the caller may read. Another user's private note
// answers like a missing one.
func (h *httpHandler) visibleNote(c *gin.Context, identity auth.Identity, id int64) (notes.NoteView, bool) {
	note, err := h.notes.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return notes.NoteView{}, false
	}
	if note.IsPrivate && note.UserID != identity.UserID {
		respondFailure(c, http.StatusNotFound, messageNoteNotFound)
		return notes.NoteView{}, false
	}
	return note, true
}

func (h *httpHandler) ownedNote(c *gin.Context, identity auth.Identity, id int64) (notes.NoteView, bool) {
	note, err := h.notes.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return notes.NoteView{}, false
	}
	if note.UserID != identity.UserID {
		respondFailure(c, http.StatusForbidden, messageForbidden)
		return notes.NoteView{}, false
	}
	return note, true
}

// checkAssets answers 400 for a missing reference and 500 when the check itself failed.
func (h *httpHandler) checkAssets(c *gin.Context, refs ...assets.Ref) bool {
	outcome, err := h.assets.Check(c.Request.Context(), refs...)
	switch outcome.Status {
	case assets.StatusExists:
		return true
	case assets.StatusNotFound:
		respondFailure(c, http.StatusBadRequest, outcome.Message())
		return false
	default:
		h.logger.Error("asset validation failed",
			zap.String("kind", string(outcome.Missing.Kind)),
			zap.Int64("id", outcome.Missing.ID),
			zap.Error(err))
		respondError(c, err)
		return false
	}
}
