package assets_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/bookclub/internal/assets"
	"github.com/MarcoPoloResearchLab/bookclub/internal/books"
	"github.com/MarcoPoloResearchLab/bookclub/internal/database"
	"github.com/MarcoPoloResearchLab/bookclub/internal/storage"
	"github.com/MarcoPoloResearchLab/bookclub/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func newChecker(t *testing.T, logger *zap.Logger) (*assets.Checker, *gorm.DB) {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "assets.db"), nil)
	require.NoError(t, err)
	checker, err := assets.NewChecker(db, logger)
	require.NoError(t, err)
	return checker, db
}

func TestNewCheckerRequiresDatabase(t *testing.T) {
	_, err := assets.NewChecker(nil, nil)
	require.Error(t, err)
}

func TestExists(t *testing.T) {
	checker, db := newChecker(t, nil)
	ctx := context.Background()

	book := books.Book{Name: "Dune", Author: "Frank Herbert"}
	require.NoError(t, db.Create(&book).Error)

	exists, err := checker.Exists(ctx, assets.KindBook, book.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = checker.Exists(ctx, assets.KindNote, 1)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = checker.Exists(ctx, assets.Kind("shelf"), 1)
	assert.True(t, storage.IsKind(err, storage.KindBadRequest))
}

func TestCheckStopsAtFirstMissing(t *testing.T) {
	checker, db := newChecker(t, nil)
	ctx := context.Background()

	user := users.User{FullName: "Eve", Username: "eve", PrivateKeyHash: "x", Status: users.StatusActive}
	require.NoError(t, db.Create(&user).Error)

	outcome, err := checker.Check(ctx,
		assets.Ref{Kind: assets.KindUser, ID: user.ID},
		assets.Ref{Kind: assets.KindBook, ID: 77},
		assets.Ref{Kind: assets.KindNote, ID: 88},
	)
	require.NoError(t, err)
	assert.Equal(t, assets.StatusNotFound, outcome.Status)
	assert.Equal(t, assets.KindBook, outcome.Missing.Kind)
	assert.Equal(t, "book does not exist", outcome.Message())

	outcome, err = checker.Check(ctx, assets.Ref{Kind: assets.KindUser, ID: user.ID})
	require.NoError(t, err)
	assert.Equal(t, assets.StatusExists, outcome.Status)
	assert.Empty(t, outcome.Message())
}

func TestCheckReportsStorageFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	checker, db := newChecker(t, zap.New(core))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	outcome, err := checker.Check(context.Background(), assets.Ref{Kind: assets.KindComment, ID: 1})
	require.Error(t, err)
	assert.Equal(t, assets.StatusCheckFailed, outcome.Status)
	assert.Equal(t, "check_failed", outcome.Status.String())
	assert.True(t, storage.IsKind(err, storage.KindStorageFailure))
	assert.Equal(t, 1, logs.FilterMessage("asset existence check failed").Len())
}
