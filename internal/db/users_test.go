package db

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnemoneDB/internal/models"
)

func TestStore_ListUserIDs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE r.role IN ($1, $2)")).
		WithArgs("subscriber", "editor", int64(40), 1000).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(41)).AddRow(int64(57)))

	ids, err := store.ListUserIDs(context.Background(), models.UserFilter{
		Roles:   []string{"subscriber", "editor"},
		AfterID: 40,
		Limit:   1000,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{41, 57}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListUserIDs_UnloggedOnly(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("u.last_login IS NULL").
		WithArgs("subscriber", int64(0), 10).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	ids, err := store.ListUserIDs(context.Background(), models.UserFilter{
		Roles:        []string{"subscriber"},
		UnloggedOnly: true,
		Limit:        10,
	})
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListUserIDs_NoRoles(t *testing.T) {
	store, mock := newMockStore(t)

	ids, err := store.ListUserIDs(context.Background(), models.UserFilter{Limit: 10})
	require.NoError(t, err)
	assert.Nil(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetUser(t *testing.T) {
	store, mock := newMockStore(t)
	last := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("SELECT id, user_login, user_email, user_nicename, last_login FROM users WHERE id").
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_login", "user_email", "user_nicename", "last_login"}).
			AddRow(int64(5), "Alice.B", "alice@example.org", "alice-b", &last))
	mock.ExpectQuery("SELECT id, user_login, user_email, user_nicename, last_login FROM users WHERE user_login").
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	user, err := store.GetUser(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Alice.B", user.Login)
	assert.Equal(t, "alice-b", user.Nicename)
	require.NotNil(t, user.LastLogin)
	assert.True(t, last.Equal(*user.LastLogin))

	missing, err := store.GetUserByLogin(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListRoles(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT name FROM roles").
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("editor").AddRow("subscriber"))

	roles, err := store.ListRoles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"editor", "subscriber"}, roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}
