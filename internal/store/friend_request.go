package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/connectify/apiserver/internal/db"
	"github.com/connectify/apiserver/types"
)

const friendRequestColumns = `id, sender_id, recipient_id, status, created_at, updated_at`

// FriendRequestRepository handles persistence for friend requests.
type FriendRequestRepository struct {
	db db.DBTX
}

func NewFriendRequestRepository(conn db.DBTX) *FriendRequestRepository {
	return &FriendRequestRepository{db: conn}
}

func scanFriendRequest(row rowScanner) (types.FriendRequest, error) {
	var req types.FriendRequest
	err := row.Scan(
		&req.ID,
		&req.SenderID,
		&req.RecipientID,
		&req.Status,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	return req, err
}

func (r *FriendRequestRepository) GetByID(ctx context.Context, id string) (types.FriendRequest, error) {
	const query = `SELECT ` + friendRequestColumns + ` FROM friend_requests WHERE id = $1`
	req, err := scanFriendRequest(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.FriendRequest{}, ErrNotFound
		}
		return types.FriendRequest{}, translateError(err)
	}
	return req, nil
}

// FindBetween returns every request between a and b, in either direction,
// oldest first.
func (r *FriendRequestRepository) FindBetween(ctx context.Context, a, b string) ([]types.FriendRequest, error) {
	const query = `SELECT ` + friendRequestColumns + `
		FROM friend_requests
		WHERE (sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1)
		ORDER BY created_at, id`
	return r.query(ctx, query, a, b)
}

// List returns the requests matching filter, newest first.
func (r *FriendRequestRepository) List(ctx context.Context, filter types.FriendRequestFilter) ([]types.FriendRequest, error) {
	var (
		conditions []string
		args       []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.SenderID != "" {
		add("sender_id", filter.SenderID)
	}
	if filter.RecipientID != "" {
		add("recipient_id", filter.RecipientID)
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}

	query := `SELECT ` + friendRequestColumns + ` FROM friend_requests`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	return r.query(ctx, query, args...)
}

func (r *FriendRequestRepository) query(ctx context.Context, query string, args ...any) ([]types.FriendRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	requests := []types.FriendRequest{}
	for rows.Next() {
		req, err := scanFriendRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}

// Create inserts a request. A second pending request for the same unordered
// pair violates friend_requests_pending_pair_key and yields ErrConflict.
func (r *FriendRequestRepository) Create(ctx context.Context, req types.FriendRequest) (types.FriendRequest, error) {
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = types.FriendRequestPending
	}

	const query = `
		INSERT INTO friend_requests (id, sender_id, recipient_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		req.ID,
		req.SenderID,
		req.RecipientID,
		string(req.Status),
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		return types.FriendRequest{}, translateError(err)
	}
	return req, nil
}

func (r *FriendRequestRepository) UpdateStatus(ctx context.Context, id string, status types.FriendRequestStatus) (types.FriendRequest, error) {
	const query = `
		UPDATE friend_requests
		SET status = $1, updated_at = $2
		WHERE id = $3
		RETURNING ` + friendRequestColumns
	req, err := scanFriendRequest(r.db.QueryRowContext(ctx, query, string(status), time.Now().UTC(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.FriendRequest{}, ErrNotFound
		}
		return types.FriendRequest{}, translateError(err)
	}
	return req, nil
}

func (r *FriendRequestRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM friend_requests WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
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

// DeleteBetween removes every request between a and b in either direction,
// except keepID when it is non-empty. It returns the number of deleted rows.
func (r *FriendRequestRepository) DeleteBetween(ctx context.Context, a, b, keepID string) (int64, error) {
	query := `
		DELETE FROM friend_requests
		WHERE ((sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1))`
	args := []any{a, b}
	if keepID != "" {
		query += ` AND id <> $3`
		args = append(args, keepID)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, translateError(err)
	}
	return result.RowsAffected()
}
