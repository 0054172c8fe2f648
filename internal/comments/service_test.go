package comments_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/bookclub/internal/comments"
	"github.com/MarcoPoloResearchLab/bookclub/internal/database"
	"github.com/MarcoPoloResearchLab/bookclub/internal/notes"
	"github.com/MarcoPoloResearchLab/bookclub/internal/storage"
	"github.com/MarcoPoloResearchLab/bookclub/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*comments.Service, users.User, users.User) {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "comments.db"), nil)
	require.NoError(t, err)

	author := users.User{FullName: "Carol Commenter", Username: "carol", PrivateKeyHash: "x", Status: users.StatusActive}
	other := users.User{FullName: "Dave Lurker", Username: "dave", PrivateKeyHash: "x", Status: users.StatusActive}
	require.NoError(t, db.Create(&author).Error)
	require.NoError(t, db.Create(&other).Error)

	service, err := comments.NewService(comments.ServiceConfig{Database: db})
	require.NoError(t, err)
	return service, author, other
}

func ptr(v int64) *int64 {
	return &v
}

func TestNewServiceRequiresDatabase(t *testing.T) {
	_, err := comments.NewService(comments.ServiceConfig{})
	require.Error(t, err)
}

func TestUpsertAndGet(t *testing.T) {
	service, author, _ := newService(t)
	ctx := context.Background()

	created, err := service.Upsert(ctx, comments.UpsertInput{UserID: author.ID, NoteID: 7, Text: "great note"})
	require.NoError(t, err)
	assert.True(t, created.Created)

	updated, err := service.Upsert(ctx, comments.UpsertInput{ID: ptr(created.CommentID), UserID: author.ID, NoteID: 7, Text: "great note, edited"})
	require.NoError(t, err)
	assert.False(t, updated.Created)
	assert.Equal(t, created.CommentID, updated.CommentID)

	comment, err := service.GetByID(ctx, created.CommentID)
	require.NoError(t, err)
	assert.Equal(t, "great note, edited", comment.Text)
	assert.Equal(t, "Carol Commenter", comment.User)

	_, err = service.GetByID(ctx, 555)
	assert.True(t, storage.IsKind(err, storage.KindNotFound))
}

func TestUpsertOwnership(t *testing.T) {
	service, author, other := newService(t)
	ctx := context.Background()

	created, err := service.Upsert(ctx, comments.UpsertInput{UserID: author.ID, NoteID: 7, Text: "original"})
	require.NoError(t, err)

	_, err = service.Upsert(ctx, comments.UpsertInput{ID: ptr(created.CommentID), UserID: other.ID, NoteID: 7, Text: "rewrite"})
	assert.True(t, storage.IsKind(err, storage.KindForbidden))

	_, err = service.Upsert(ctx, comments.UpsertInput{ID: ptr(created.CommentID), UserID: author.ID, NoteID: 8, Text: "moved"})
	assert.True(t, storage.IsKind(err, storage.KindBadRequest))

	_, err = service.Upsert(ctx, comments.UpsertInput{UserID: author.ID, NoteID: 7, Text: ""})
	assert.True(t, storage.IsKind(err, storage.KindBadRequest))
}

func TestQueryFiltersCombine(t *testing.T) {
	service, author, other := newService(t)
	ctx := context.Background()

	inputs := []comments.UpsertInput{
		{UserID: author.ID, NoteID: 1, Text: "a1"},
		{UserID: other.ID, NoteID: 1, Text: "o1"},
		{UserID: author.ID, NoteID: 2, Text: "a2"},
	}
	for _, input := range inputs {
		_, err := service.Upsert(ctx, input)
		require.NoError(t, err)
	}

	onNote, err := service.Query(ctx, comments.Query{NoteID: ptr(1)})
	require.NoError(t, err)
	require.Len(t, onNote, 2)
	assert.Equal(t, "o1", onNote[0].Text, "newest first")

	byAuthor, err := service.Query(ctx, comments.Query{UserID: ptr(author.ID)})
	require.NoError(t, err)
	assert.Len(t, byAuthor, 2)

	both, err := service.Query(ctx, comments.Query{NoteID: ptr(1), UserID: ptr(author.ID)})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "a1", both[0].Text)

	limit := 1
	limited, err := service.Query(ctx, comments.Query{Limit: &limit})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "a2", limited[0].Text)
}

func TestQueryHidesCommentsOnOthersPrivateNotes(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "visibility.db"), nil)
	require.NoError(t, err)
	owner := users.User{FullName: "Olive Owner", Username: "olive", PrivateKeyHash: "x", Status: users.StatusActive}
	stranger := users.User{FullName: "Sam Stranger", Username: "sam", PrivateKeyHash: "x", Status: users.StatusActive}
	require.NoError(t, db.Create(&owner).Error)
	require.NoError(t, db.Create(&stranger).Error)
	private := notes.Note{UserID: owner.ID, BookID: 1, Text: "secret diary", IsPrivate: true}
	public := notes.Note{UserID: owner.ID, BookID: 1, Text: "open letter"}
	require.NoError(t, db.Create(&private).Error)
	require.NoError(t, db.Create(&public).Error)

	service, err := comments.NewService(comments.ServiceConfig{Database: db})
	require.NoError(t, err)
	ctx := context.Background()
	for _, input := range []comments.UpsertInput{
		{UserID: owner.ID, NoteID: private.ID, Text: "private remark"},
		{UserID: owner.ID, NoteID: public.ID, Text: "public remark"},
	} {
		_, err := service.Upsert(ctx, input)
		require.NoError(t, err)
	}

	asStranger, err := service.Query(ctx, comments.Query{NoteID: ptr(private.ID), ViewerID: ptr(stranger.ID)})
	require.NoError(t, err)
	assert.Empty(t, asStranger)

	byOwnerAsStranger, err := service.Query(ctx, comments.Query{UserID: ptr(owner.ID), ViewerID: ptr(stranger.ID)})
	require.NoError(t, err)
	require.Len(t, byOwnerAsStranger, 1)
	assert.Equal(t, "public remark", byOwnerAsStranger[0].Text)

	asOwner, err := service.Query(ctx, comments.Query{NoteID: ptr(private.ID), ViewerID: ptr(owner.ID)})
	require.NoError(t, err)
	require.Len(t, asOwner, 1)
	assert.Equal(t, "Olive Owner", asOwner[0].User)
}

func TestDelete(t *testing.T) {
	service, author, _ := newService(t)
	ctx := context.Background()

	created, err := service.Upsert(ctx, comments.UpsertInput{UserID: author.ID, NoteID: 3, Text: "bye"})
	require.NoError(t, err)
	_, err = service.Upsert(ctx, comments.UpsertInput{UserID: author.ID, NoteID: 3, Text: "bye again"})
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, created.CommentID))
	err = service.Delete(ctx, created.CommentID)
	assert.True(t, storage.IsKind(err, storage.KindNotFound))

	require.NoError(t, service.DeleteByNote(ctx, 3))
	remaining, err := service.Query(ctx, comments.Query{NoteID: ptr(3)})
	require.NoError(t, err)
	assert.Empty(t, remaining)

	assert.NoError(t, service.DeleteByNote(ctx, 3), "deleting nothing is not an error")
}
