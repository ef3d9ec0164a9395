package services

import (
	"context"
	"time"

	"github.com/connectify/apiserver/types"
)

// UserRepository defines persistence operations for users.
// Writes touch only the columns they name, so concurrent flows on the same
// user never overwrite each other's state. MarkVerified and ResetPassword
// apply only while the given code is still the stored one and return
// store.ErrNotFound otherwise.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetManyByIDs(ctx context.Context, ids []string) ([]types.User, error)
	ListOnboarded(ctx context.Context, exclude []string) ([]types.User, error)
	SearchOnboarded(ctx context.Context, term, excludeID string, limit int) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateProfile(ctx context.Context, id string, patch types.UserPatch) (types.User, error)
	SetSignupOTP(ctx context.Context, id, code string, expiresAt time.Time) error
	MarkVerified(ctx context.Context, id, code string) (types.User, error)
	SetResetOTP(ctx context.Context, id, code string, expiresAt time.Time) error
	ResetPassword(ctx context.Context, id, code, passwordHash string) error
	AddFriend(ctx context.Context, userID, friendID string) error
	RemoveFriend(ctx context.Context, userID, friendID string) error
}

// FriendRequestRepository defines persistence operations for friend requests.
type FriendRequestRepository interface {
	GetByID(ctx context.Context, id string) (types.FriendRequest, error)
	FindBetween(ctx context.Context, a, b string) ([]types.FriendRequest, error)
	List(ctx context.Context, filter types.FriendRequestFilter) ([]types.FriendRequest, error)
	Create(ctx context.Context, req types.FriendRequest) (types.FriendRequest, error)
	UpdateStatus(ctx context.Context, id string, status types.FriendRequestStatus) (types.FriendRequest, error)
	Delete(ctx context.Context, id string) error
	DeleteBetween(ctx context.Context, a, b, keepID string) (int64, error)
}

// TxFunc runs fn with repositories bound to one unit of work. Returning an
// error from fn discards every write made through those repositories.
type TxFunc func(ctx context.Context, fn func(ctx context.Context, users UserRepository, requests FriendRequestRepository) error) error

// NoTx runs fn directly against the given repositories, without atomicity.
func NoTx(users UserRepository, requests FriendRequestRepository) TxFunc {
	return func(ctx context.Context, fn func(ctx context.Context, users UserRepository, requests FriendRequestRepository) error) error {
		return fn(ctx, users, requests)
	}
}
