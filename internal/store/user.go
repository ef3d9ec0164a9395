package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/connectify/apiserver/internal/db"
	"github.com/connectify/apiserver/types"
	"github.com/lib/pq"
)

const userColumns = `id, email, password_hash, full_name, bio, native_language, location,
		profile_pic, profile_pic_key, is_onboarded, is_verified,
		otp, otp_expires_at, reset_otp, reset_otp_expires_at, created_at, updated_at`

// UserRepository handles persistence for users and their friend links.
type UserRepository struct {
	db db.DBTX
}

func NewUserRepository(conn db.DBTX) *UserRepository {
	return &UserRepository{db: conn}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FullName,
		&user.Bio,
		&user.NativeLanguage,
		&user.Location,
		&user.ProfilePic,
		&user.ProfilePicKey,
		&user.IsOnboarded,
		&user.IsVerified,
		&user.OTP,
		&user.OTPExpiresAt,
		&user.ResetOTP,
		&user.ResetOTPExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.getOne(ctx, query, email)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (types.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, translateError(err)
	}

	friends, err := r.friendIDs(ctx, user.ID)
	if err != nil {
		return types.User{}, err
	}
	user.Friends = friends
	return user, nil
}

func (r *UserRepository) friendIDs(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT friend_id FROM user_friends WHERE user_id = $1 ORDER BY created_at, friend_id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetManyByIDs returns the users with the given ids. Friend sets are not loaded.
func (r *UserRepository) GetManyByIDs(ctx context.Context, ids []string) ([]types.User, error) {
	if len(ids) == 0 {
		return []types.User{}, nil
	}
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1::uuid[]) ORDER BY full_name, id`
	return r.list(ctx, query, pq.Array(ids))
}

// ListOnboarded returns onboarded users whose id is not in exclude.
func (r *UserRepository) ListOnboarded(ctx context.Context, exclude []string) ([]types.User, error) {
	const query = `SELECT ` + userColumns + `
		FROM users
		WHERE is_onboarded AND NOT (id = ANY($1::uuid[]))
		ORDER BY created_at DESC, id`
	return r.list(ctx, query, pq.Array(nonNil(exclude)))
}

// SearchOnboarded matches onboarded users by a case-insensitive substring of
// their full name, skipping excludeID.
func (r *UserRepository) SearchOnboarded(ctx context.Context, term, excludeID string, limit int) ([]types.User, error) {
	if limit < 1 {
		limit = 20
	}
	const query = `SELECT ` + userColumns + `
		FROM users
		WHERE is_onboarded AND id <> $1 AND full_name ILIKE '%' || $2 || '%' ESCAPE '\'
		ORDER BY full_name, id
		LIMIT $3`
	return r.list(ctx, query, excludeID, escapeLike(term), limit)
}

func (r *UserRepository) list(ctx context.Context, query string, args ...any) ([]types.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	users := []types.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (id, email, password_hash, full_name, bio, native_language, location,
			profile_pic, profile_pic_key, is_onboarded, is_verified,
			otp, otp_expires_at, reset_otp, reset_otp_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FullName,
		user.Bio,
		user.NativeLanguage,
		user.Location,
		user.ProfilePic,
		user.ProfilePicKey,
		user.IsOnboarded,
		user.IsVerified,
		user.OTP,
		user.OTPExpiresAt,
		user.ResetOTP,
		user.ResetOTPExpiresAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, translateError(err)
	}
	if user.Friends == nil {
		user.Friends = []string{}
	}
	return user, nil
}

// UpdateProfile writes only the columns set in patch and returns the stored
// row. Verification and password state are never touched.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, patch types.UserPatch) (types.User, error) {
	const query = `
		UPDATE users
		SET full_name = COALESCE($1, full_name),
			bio = COALESCE($2, bio),
			native_language = COALESCE($3, native_language),
			location = COALESCE($4, location),
			profile_pic = COALESCE($5, profile_pic),
			profile_pic_key = COALESCE($6, profile_pic_key),
			is_onboarded = COALESCE($7, is_onboarded),
			updated_at = $8
		WHERE id = $9
		RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRowContext(
		ctx,
		query,
		patch.FullName,
		patch.Bio,
		patch.NativeLanguage,
		patch.Location,
		patch.ProfilePic,
		patch.ProfilePicKey,
		patch.IsOnboarded,
		time.Now().UTC(),
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, translateError(err)
	}

	friends, err := r.friendIDs(ctx, user.ID)
	if err != nil {
		return types.User{}, err
	}
	user.Friends = friends
	return user, nil
}

// SetSignupOTP stores a new email verification code, replacing any earlier one.
func (r *UserRepository) SetSignupOTP(ctx context.Context, id, code string, expiresAt time.Time) error {
	const query = `UPDATE users SET otp = $1, otp_expires_at = $2, updated_at = $3 WHERE id = $4`
	return r.exec(ctx, query, code, expiresAt, time.Now().UTC(), id)
}

// MarkVerified verifies the user if code is still the stored signup code.
// It returns ErrNotFound when the code was replaced or already used.
func (r *UserRepository) MarkVerified(ctx context.Context, id, code string) (types.User, error) {
	const query = `
		UPDATE users
		SET is_verified = TRUE, otp = NULL, otp_expires_at = NULL, updated_at = $1
		WHERE id = $2 AND otp = $3
		RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRowContext(ctx, query, time.Now().UTC(), id, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, translateError(err)
	}

	friends, err := r.friendIDs(ctx, user.ID)
	if err != nil {
		return types.User{}, err
	}
	user.Friends = friends
	return user, nil
}

// SetResetOTP stores a new password reset code, replacing any earlier one.
func (r *UserRepository) SetResetOTP(ctx context.Context, id, code string, expiresAt time.Time) error {
	const query = `UPDATE users SET reset_otp = $1, reset_otp_expires_at = $2, updated_at = $3 WHERE id = $4`
	return r.exec(ctx, query, code, expiresAt, time.Now().UTC(), id)
}

// ResetPassword replaces the password hash if code is still the stored reset
// code. It returns ErrNotFound when the code was replaced or already used.
func (r *UserRepository) ResetPassword(ctx context.Context, id, code, passwordHash string) error {
	const query = `
		UPDATE users
		SET password_hash = $1, reset_otp = NULL, reset_otp_expires_at = NULL, updated_at = $2
		WHERE id = $3 AND reset_otp = $4`
	return r.exec(ctx, query, passwordHash, time.Now().UTC(), id, code)
}

func (r *UserRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return translateError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddFriend inserts the one-directional link userID -> friendID. Inserting an
// existing link is a no-op.
func (r *UserRepository) AddFriend(ctx context.Context, userID, friendID string) error {
	const query = `
		INSERT INTO user_friends (user_id, friend_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, friend_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, userID, friendID); err != nil {
		return translateError(err)
	}
	return nil
}

// RemoveFriend deletes the link userID -> friendID if present.
func (r *UserRepository) RemoveFriend(ctx context.Context, userID, friendID string) error {
	const query = `DELETE FROM user_friends WHERE user_id = $1 AND friend_id = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, friendID); err != nil {
		return translateError(err)
	}
	return nil
}

func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
