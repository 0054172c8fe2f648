package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/bookclub/internal/assets"
	"github.com/MarcoPoloResearchLab/bookclub/internal/comments"
	"github.com/MarcoPoloResearchLab/bookclub/internal/storage"
	"github.com/gin-gonic/gin"
)

const messageCommentNotFound = "comment not found"

type upsertCommentRequest struct {
	ID      *int64 `json:"id"`
	UserID  int64  `json:"userId"`
	NoteID  int64  `json:"noteId"`
	Comment string `json:"comment"`
}

func (h *httpHandler) handleUpsertComment(c *gin.Context) {
	identity, _ := identityFrom(c)
	var request upsertCommentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondFailure(c, http.StatusBadRequest, "invalid request body")
		return
	}
	switch {
	case request.UserID <= 0:
		respondFailure(c, http.StatusBadRequest, "userId is mandatory")
		return
	case request.NoteID <= 0:
		respondFailure(c, http.StatusBadRequest, "noteId is mandatory")
		return
	case request.UserID != identity.UserID:
		respondFailure(c, http.StatusForbidden, messageForbidden)
		return
	}

	if !h.checkAssets(c, assets.Ref{Kind: assets.KindNote, ID: request.NoteID}, assets.Ref{Kind: assets.KindUser, ID: request.UserID}) {
		return
	}
	note, ok := h.visibleNote(c, identity, request.NoteID)
	if !ok {
		return
	}

	result, err := h.comments.Upsert(c.Request.Context(), comments.UpsertInput{
		ID:     request.ID,
		UserID: request.UserID,
		NoteID: request.NoteID,
		Text:   request.Comment,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	message := "Comment updated successfully"
	if result.Created {
		message = "Comment added successfully"
		h.notifyOwner(ActivityEventCommentAdded, note.UserID, identity.UserID, note.ID, result.CommentID)
	}
	respondOK(c, message, gin.H{"data": gin.H{"id": result.CommentID}})
}

func (h *httpHandler) handleGetComment(c *gin.Context) {
	identity, _ := identityFrom(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	comment, err := h.comments.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	note, err := h.notes.GetByID(c.Request.Context(), comment.NoteID)
	if err != nil && !storage.IsKind(err, storage.KindNotFound) {
		respondError(c, err)
		return
	}
	// comments on another user's private note answer like missing ones
	if err == nil && note.IsPrivate && note.UserID != identity.UserID {
		respondFailure(c, http.StatusNotFound, messageCommentNotFound)
		return
	}
	respondData(c, "Comment found", comment, 1)
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	identity, _ := identityFrom(c)
	noteID, ok := parseOptionalID(c, "noteId")
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
	found, err := h.comments.Query(c.Request.Context(), comments.Query{
		NoteID:   noteID,
		UserID:   userID,
		ViewerID: &identity.UserID,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, "Comments found", found, len(found))
}

func (h *httpHandler) handleDeleteComment(c *gin.Context) {
	identity, _ := identityFrom(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	comment, err := h.comments.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if comment.UserID != identity.UserID {
		respondFailure(c, http.StatusForbidden, messageForbidden)
		return
	}
	if err := h.comments.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Comment deleted successfully", nil)
}
