package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/connectify/apiserver/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userRowColumns = []string{
	"id", "email", "password_hash", "full_name", "bio", "native_language", "location",
	"profile_pic", "profile_pic_key", "is_onboarded", "is_verified",
	"otp", "otp_expires_at", "reset_otp", "reset_otp_expires_at", "created_at", "updated_at",
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = conn.Close()
	})
	return conn, mock
}

func userRow(rows *sqlmock.Rows, id, email, name string, onboarded bool) *sqlmock.Rows {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return rows.AddRow(
		id, email, "hash", name, "", "", "",
		"https://avatar.iran.liara.run/public/1.png", "", onboarded, true,
		nil, nil, nil, nil, now, now,
	)
}

func TestUserGetByIDLoadsFriends(t *testing.T) {
	conn, mock := newMockDB(t)
	repo := NewUserRepository(conn)

	mock.ExpectQuery(`(?s)^SELECT .* FROM users WHERE id = \$1$`).
		WithArgs("u-1").
		WillReturnRows(userRow(sqlmock.NewRows(userRowColumns), "u-1", "ana@example.com", "Ana", true))
	mock.ExpectQuery(`SELECT friend_id FROM user_friends WHERE user_id = \$1`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"friend_id"}).AddRow("u-2").AddRow("u-3"))

	user, err := repo.GetByID(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.True(t, user.IsOnboarded)
	assert.Nil(t, user.OTP)
	assert.Equal(t, []string{"u-2", "u-3"}, user.Friends)
}

func TestUserGetByEmailNotFound(t *testing.T) {
	conn, mock := newMockDB(t)
	repo := NewUserRepository(conn)

	mock.ExpectQuery(`(?s)^SELECT .* FROM users WHERE email = \$1$`).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserGetByIDMalformedUUID(t *testing.T) {
	conn, mock := newMockDB(t)
	repo := NewUserRepository(conn)

	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs("not-a-uuid").
		WillReturnError(&pq.Error{Code: "22P02", Message: "invalid input syntax for type uuid"})

	_, err := repo.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	conn, mock := newMockDB(t)
	repo := NewUserRepository(conn)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	_, err := repo.Create(context.Background(), types.User{ID: "u-1", Email: "ana@example.com"})
	require.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "users_email_key")
}

func TestUserCreate(t *testing.T) {
	conn, mock := newMockDB(t)
	repo := NewUserRepository(conn)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	user, err := repo.Create(context.Background(), types.User{ID: "u-1", Email: "ana@example.com"})
	require.NoError(t, err)
	assert.NotNil(t, user.Friends)
	assert.False(t, user.CreatedAt.IsZero())
	assert.Equal(t, user.CreatedAt, user.UpdatedAt)
}

func TestUserUpdateProfileWritesOnlyPatchedColumns(t *testing.T) {
	conn, mock := newMockDB(t)
	repo := NewUserRepository(conn)
	bio := "hola"

	mock.ExpectQuery(`(?s)UPDATE users\s+SET full_name = COALESCE\(\$1, full_name\).* WHERE id = \$9\s+RETURNING`).
		WithArgs(nil, "hola", nil, nil, nil, nil, nil, sqlmock.AnyArg(), "u-1").
		WillReturnRows(userRow(sqlmock.NewRows(userRowColumns), "u-1", "ana@example.com", "Ana", true))
	mock.ExpectQuery(`SELECT friend_id FROM user_friends WHERE user_id = \$1`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"friend_id"}).AddRow("u-2"))

	user, err := repo.UpdateProfile(context.Background(), "u-1", types.UserPatch{Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "Ana", user.FullName)
	assert.Equal(t, []string{"u-2"}, user.Friends)
}

func TestUserUpdateProfileMissingRow(t *testing.T) {
	conn, mock := newMockDB(t)
	repo := NewUserRepository(conn)

	mock.ExpectQuery(`(?s)UPDATE users\s+SET .* WHERE id = \$9`).
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	_, err := repo.UpdateProfile(context.Background(), "u-1", types.UserPatch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserOTPWrites(t *testing.T) {
	conn, mock := newMockDB(t)
	repo := NewUserRepository(conn)
	ctx := context.Background()
	expires := time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE users SET otp = \$1, otp_expires_at = \$2, updated_at = \$3 WHERE id = \$4`).
		WithArgs("111111", expires, sqlmock.AnyArg(), "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET reset_otp = \$1, reset_otp_expires_at = \$2, updated_at = \$3 WHERE id = \$4`).
		WithArgs("222222", expires, sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`(?s)SET password_hash = \$1, reset_otp = NULL.* WHERE id = \$3 AND reset_otp = \$4`).
		WithArgs("hash", sqlmock.AnyArg(), "u-1", "222222").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SetSignupOTP(ctx, "u-1", "111111", expires))
	assert.ErrorIs(t, repo.SetResetOTP(ctx, "missing", "222222", expires), ErrNotFound)
	assert.ErrorIs(t, repo.ResetPassword(ctx, "u-1", "222222", "hash"), ErrNotFound)
}

func TestUserMarkVerifiedRequiresCurrentCode(t *testing.T) {
	conn, mock := newMockDB(t)
	repo := NewUserRepository(conn)
	ctx := context.Background()

	mock.ExpectQuery(`(?s)SET is_verified = TRUE, otp = NULL.* WHERE id = \$2 AND otp = \$3`).
		WithArgs(sqlmock.AnyArg(), "u-1", "stale").
		WillReturnRows(sqlmock.NewRows(userRowColumns))
	mock.ExpectQuery(`(?s)SET is_verified = TRUE, otp = NULL.* WHERE id = \$2 AND otp = \$3`).
		WithArgs(sqlmock.AnyArg(), "u-1", "111111").
		WillReturnRows(userRow(sqlmock.NewRows(userRowColumns), "u-1", "ana@example.com", "Ana", false))
	mock.ExpectQuery(`SELECT friend_id FROM user_friends WHERE user_id = \$1`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"friend_id"}))

	_, err := repo.MarkVerified(ctx, "u-1", "stale")
	assert.ErrorIs(t, err, ErrNotFound)

	user, err := repo.MarkVerified(ctx, "u-1", "111111")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
	assert.Empty(t, user.Friends)
}

func TestUserFriendLinks(t *testing.T) {
	conn, mock := newMockDB(t)
	repo := NewUserRepository(conn)
	ctx := context.Background()

	mock.ExpectExec(`(?s)INSERT INTO user_friends .* ON CONFLICT \(user_id, friend_id\) DO NOTHING`).
		WithArgs("u-1", "u-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM user_friends WHERE user_id = \$1 AND friend_id = \$2`).
		WithArgs("u-1", "u-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.AddFriend(ctx, "u-1", "u-2"))
	require.NoError(t, repo.RemoveFriend(ctx, "u-1", "u-2"))
}

func TestUserListOnboarded(t *testing.T) {
	conn, mock := newMockDB(t)
	repo := NewUserRepository(conn)

	rows := sqlmock.NewRows(userRowColumns)
	userRow(rows, "u-2", "bo@example.com", "Bo", true)
	userRow(rows, "u-3", "cy@example.com", "Cy", true)
	mock.ExpectQuery(`(?s)WHERE is_onboarded AND NOT \(id = ANY\(\$1::uuid\[\]\)\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	users, err := repo.ListOnboarded(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u-2", users[0].ID)
	assert.Equal(t, "u-3", users[1].ID)
}

func TestUserGetManyByIDsEmpty(t *testing.T) {
	conn, _ := newMockDB(t)
	repo := NewUserRepository(conn)

	users, err := repo.GetManyByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.NotNil(t, users)
}

func TestUserSearchOnboardedEscapesPattern(t *testing.T) {
	conn, mock := newMockDB(t)
	repo := NewUserRepository(conn)

	mock.ExpectQuery(`(?s)full_name ILIKE .* LIMIT \$3`).
		WithArgs("u-1", `50\%\_off`, 20).
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	users, err := repo.SearchOnboarded(context.Background(), "50%_off", "u-1", 0)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestTranslateErrorPassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("connection reset")
	assert.Same(t, plain, translateError(plain))

	other := &pq.Error{Code: "40001"}
	assert.Equal(t, error(other), translateError(other))
}
