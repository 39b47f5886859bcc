package sqldb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/repository"
)

// newTestDB opens a fresh in-memory SQLite database with the schema applied.
// Each call gets its own database because SQLite keeps exactly one connection.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, email string) *model.User {
	t.Helper()
	user := &model.User{Email: email, Name: "Test", PasswordHash: "hash", IsActive: true}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// =========================================================================
// CONNECTION TESTS
// =========================================================================

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))
	require.NoError(t, db.Migrate(context.Background()))
}

func TestRebind(t *testing.T) {
	tests := []struct {
		name  string
		d     dialect
		query string
		want  string
	}{
		{"sqlite untouched", sqliteDialect, "SELECT 1 WHERE a = ? AND b = ?", "SELECT 1 WHERE a = ? AND b = ?"},
		{"postgres numbered", postgresDialect, "SELECT 1 WHERE a = ? AND b IN (?, ?)", "SELECT 1 WHERE a = $1 AND b IN ($2, $3)"},
		{"postgres no args", postgresDialect, "SELECT 1", "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.d.rebind(tt.query))
		})
	}
}

func TestSQLiteDSN_AddsPragmas(t *testing.T) {
	assert.Equal(t, "data/recipes.db?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", sqliteDialect.dsn("data/recipes.db"))
	assert.Equal(t, "file:x.db?mode=rwc&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", sqliteDialect.dsn("file:x.db?mode=rwc"))
	assert.Equal(t, "postgres://localhost/app", postgresDialect.dsn("postgres://localhost/app"))
}

func TestSQLite_ForeignKeysOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	db, err := Connect(DriverSQLite, filepath.Join(t.TempDir(), "fk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// No idle connections: every query below runs on a freshly opened one,
	// and Ping is never called.
	db.conn.SetMaxIdleConns(0)

	for i := 0; i < 3; i++ {
		var enabled int
		require.NoError(t, db.conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled))
		assert.Equal(t, 1, enabled)
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.InTx(ctx, func(tx repository.Store) error {
		u := &model.User{Email: "rollback@example.com", IsActive: true}
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = db.GetUserByEmail(ctx, "rollback@example.com")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestInTx_NestedJoinsOuter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.InTx(ctx, func(outer repository.Store) error {
		return outer.InTx(ctx, func(inner repository.Store) error {
			assert.Same(t, outer, inner)
			return inner.CreateUser(ctx, &model.User{Email: "nested@example.com", IsActive: true})
		})
	})
	require.NoError(t, err)

	_, err = db.GetUserByEmail(ctx, "nested@example.com")
	assert.NoError(t, err)
}

// =========================================================================
// USER TESTS
// =========================================================================

func TestCreateUser(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{Email: "test@example.com", Name: "Test Name", PasswordHash: "x", IsActive: true}
	require.NoError(t, db.CreateUser(context.Background(), user))

	assert.NotZero(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())

	got, err := db.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "test@example.com", got.Email)
	assert.Equal(t, "Test Name", got.Name)
	assert.True(t, got.IsActive)
	assert.False(t, got.IsStaff)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "dup@example.com")

	err := db.CreateUser(context.Background(), &model.User{Email: "dup@example.com"})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), 999)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestListUsers_Search(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "alice@example.com")
	createTestUser(t, db, "bob@example.com")
	carol := &model.User{Email: "c@example.com", Name: "Carol ALICEson", IsActive: true}
	require.NoError(t, db.CreateUser(context.Background(), carol))

	all, err := db.ListUsers(context.Background(), repository.UserListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	found, err := db.ListUsers(context.Background(), repository.UserListOptions{Search: "alice"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "alice@example.com", found[0].Email)
	assert.Equal(t, "c@example.com", found[1].Email)
}

func TestUpdateUser(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "update@example.com")

	user.Name = "Renamed"
	user.IsStaff = true
	require.NoError(t, db.UpdateUser(context.Background(), user))

	got, err := db.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.True(t, got.IsStaff)
}

func TestUpdateUser_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.UpdateUser(context.Background(), &model.User{ID: 42, Email: "ghost@example.com"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDeleteUser_CascadesToRecipes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "gone@example.com")
	recipe := createTestRecipe(t, db, user.ID, "Soon gone")
	tag, _, err := db.GetOrCreateAttribute(ctx, model.KindTag, user.ID, "Vegan")
	require.NoError(t, err)
	require.NoError(t, db.SetRecipeAttributes(ctx, model.KindTag, recipe.ID, []int64{tag.ID}))

	require.NoError(t, db.DeleteUser(ctx, user.ID))

	_, err = db.GetRecipe(ctx, user.ID, recipe.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = db.GetAttribute(ctx, model.KindTag, user.ID, tag.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
