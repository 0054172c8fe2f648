package search_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/bookclub/internal/books"
	"github.com/MarcoPoloResearchLab/bookclub/internal/database"
	"github.com/MarcoPoloResearchLab/bookclub/internal/notes"
	"github.com/MarcoPoloResearchLab/bookclub/internal/search"
	"github.com/MarcoPoloResearchLab/bookclub/internal/storage"
	"github.com/MarcoPoloResearchLab/bookclub/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchMatchesBooksAndPublicNotes(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "search.db"), nil)
	require.NoError(t, err)

	user := users.User{FullName: "Frank Fan", Username: "fan", PrivateKeyHash: "x", Status: users.StatusActive}
	require.NoError(t, db.Create(&user).Error)
	dune := books.Book{Name: "Dune", Author: "Frank Herbert"}
	emma := books.Book{Name: "Emma", Author: "Jane Austen"}
	require.NoError(t, db.Create(&dune).Error)
	require.NoError(t, db.Create(&emma).Error)

	modified := time.Date(2026, time.July, 14, 0, 0, 0, 0, time.UTC).Unix()
	require.NoError(t, db.Create(&notes.Note{UserID: user.ID, BookID: emma.ID, Text: "Reminds me of DUNE", ModifiedAtSeconds: modified}).Error)
	require.NoError(t, db.Create(&notes.Note{UserID: user.ID, BookID: emma.ID, Text: "secret dune thoughts", IsPrivate: true, ModifiedAtSeconds: modified}).Error)

	service, err := search.NewService(db, nil)
	require.NoError(t, err)

	results, err := service.Search(context.Background(), "  Dune ")
	require.NoError(t, err)
	require.Len(t, results, 2)

	byType := map[string]search.Result{}
	for _, result := range results {
		byType[result.Type] = result
	}
	book := byType[search.TypeBook]
	assert.Equal(t, "Dune", book.Field1)
	assert.Equal(t, "Frank Herbert", book.Field4)
	assert.Empty(t, book.Field2)

	note := byType[search.TypeNote]
	assert.Equal(t, "Reminds me of DUNE", note.Field1)
	assert.Equal(t, "Frank Fan", note.Field2)
	assert.Equal(t, "Emma", note.Field3)
	assert.Equal(t, "Jane Austen", note.Field4)
	assert.Equal(t, "2026-07-14", note.Field5)

	results, err = service.Search(context.Background(), "austen")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, search.TypeBook, results[0].Type)
}

func TestSearchRequiresKeyword(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "empty.db"), nil)
	require.NoError(t, err)
	service, err := search.NewService(db, nil)
	require.NoError(t, err)

	_, err = service.Search(context.Background(), "   ")
	assert.True(t, storage.IsKind(err, storage.KindBadRequest))
}

func TestSearchMatchesNonASCIITitles(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "accents.db"), nil)
	require.NoError(t, err)
	require.NoError(t, db.Create(&books.Book{Name: "Émile", Author: "Rousseau"}).Error)

	service, err := search.NewService(db, nil)
	require.NoError(t, err)

	for _, keyword := range []string{"Émile", "ÉMILE", "mile", "ROUSSEAU"} {
		results, err := service.Search(context.Background(), keyword)
		require.NoError(t, err)
		require.Len(t, results, 1, "keyword %q", keyword)
		assert.Equal(t, "Émile", results[0].Field1)
	}
}
