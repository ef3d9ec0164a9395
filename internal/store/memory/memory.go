// Package memory is an in-process implementation of the repositories, used
// for local development and tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/connectify/apiserver/internal/services"
	"github.com/connectify/apiserver/internal/store"
	"github.com/connectify/apiserver/types"
)

// Store keeps users and friend requests in maps guarded by a mutex.
type Store struct {
	mu       sync.RWMutex
	users    map[string]types.User
	requests map[string]types.FriendRequest
	order    map[string]uint64
	seq      uint64

	// gate is held exclusively by a running Tx and shared by every other
	// repository call, so nothing outside the Tx writes while it may roll back.
	gate sync.RWMutex
	now  func() time.Time
}

func New() *Store {
	return &Store{
		users:    make(map[string]types.User),
		requests: make(map[string]types.FriendRequest),
		order:    make(map[string]uint64),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Users() *UserRepository {
	return &UserRepository{s: s}
}

func (s *Store) FriendRequests() *FriendRequestRepository {
	return &FriendRequestRepository{s: s}
}

// enter waits for any running Tx unless the caller is that Tx.
func (s *Store) enter(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.gate.RLock()
	return s.gate.RUnlock
}

type snapshot struct {
	users    map[string]types.User
	requests map[string]types.FriendRequest
	order    map[string]uint64
	seq      uint64
}

// Tx runs fn one at a time with exclusive access to the store. When fn
// fails, the store is restored to the state it had before fn started.
// fn must only use the repositories it is given.
func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context, users services.UserRepository, requests services.FriendRequestRepository) error) error {
	s.gate.Lock()
	defer s.gate.Unlock()

	s.mu.RLock()
	snap := snapshot{
		users:    make(map[string]types.User, len(s.users)),
		requests: maps.Clone(s.requests),
		order:    maps.Clone(s.order),
		seq:      s.seq,
	}
	for id, u := range s.users {
		snap.users[id] = cloneUser(u)
	}
	s.mu.RUnlock()

	users := &UserRepository{s: s, tx: true}
	requests := &FriendRequestRepository{s: s, tx: true}
	if err := fn(ctx, users, requests); err != nil {
		s.mu.Lock()
		s.users = snap.users
		s.requests = snap.requests
		s.order = snap.order
		s.seq = snap.seq
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) nextSeq(id string) {
	s.seq++
	s.order[id] = s.seq
}

func cloneUser(u types.User) types.User {
	u.Friends = slices.Clone(u.Friends)
	if u.Friends == nil {
		u.Friends = []string{}
	}
	return u
}

// UserRepository implements services.UserRepository.
type UserRepository struct {
	s  *Store
	tx bool
}

func (r *UserRepository) GetByID(_ context.Context, id string) (types.User, error) {
	defer r.s.enter(r.tx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (types.User, error) {
	defer r.s.enter(r.tx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return types.User{}, store.ErrNotFound
}

// GetManyByIDs returns the users with the given ids ordered by full name.
// Unlike the SQL repository it also returns their friend sets.
func (r *UserRepository) GetManyByIDs(_ context.Context, ids []string) ([]types.User, error) {
	defer r.s.enter(r.tx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []types.User{}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if u, ok := r.s.users[id]; ok {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListOnboarded returns onboarded users not in exclude, newest first.
func (r *UserRepository) ListOnboarded(_ context.Context, exclude []string) ([]types.User, error) {
	defer r.s.enter(r.tx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []types.User{}
	for _, u := range r.s.users {
		if u.IsOnboarded && !slices.Contains(exclude, u.ID) {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.s.order[out[i].ID] > r.s.order[out[j].ID]
	})
	return out, nil
}

func (r *UserRepository) SearchOnboarded(_ context.Context, term, excludeID string, limit int) ([]types.User, error) {
	if limit < 1 {
		limit = 20
	}
	term = strings.ToLower(term)

	defer r.s.enter(r.tx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []types.User{}
	for _, u := range r.s.users {
		if u.IsOnboarded && u.ID != excludeID && strings.Contains(strings.ToLower(u.FullName), term) {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *UserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	defer r.s.enter(r.tx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.users[user.ID]; exists {
		return types.User{}, fmt.Errorf("%w: users_pkey", store.ErrConflict)
	}
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return types.User{}, fmt.Errorf("%w: users_email_key", store.ErrConflict)
		}
	}

	now := r.s.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user = cloneUser(user)
	r.s.users[user.ID] = user
	r.s.nextSeq(user.ID)
	return cloneUser(user), nil
}

// UpdateProfile applies the non-nil fields of patch.
func (r *UserRepository) UpdateProfile(_ context.Context, id string, patch types.UserPatch) (types.User, error) {
	return r.modify(id, func(u *types.User) bool {
		setIf(&u.FullName, patch.FullName)
		setIf(&u.Bio, patch.Bio)
		setIf(&u.NativeLanguage, patch.NativeLanguage)
		setIf(&u.Location, patch.Location)
		setIf(&u.ProfilePic, patch.ProfilePic)
		setIf(&u.ProfilePicKey, patch.ProfilePicKey)
		setIf(&u.IsOnboarded, patch.IsOnboarded)
		return true
	})
}

func (r *UserRepository) SetSignupOTP(_ context.Context, id, code string, expiresAt time.Time) error {
	_, err := r.modify(id, func(u *types.User) bool {
		u.OTP = &code
		u.OTPExpiresAt = &expiresAt
		return true
	})
	return err
}

func (r *UserRepository) MarkVerified(_ context.Context, id, code string) (types.User, error) {
	return r.modify(id, func(u *types.User) bool {
		if u.OTP == nil || *u.OTP != code {
			return false
		}
		u.IsVerified = true
		u.OTP = nil
		u.OTPExpiresAt = nil
		return true
	})
}

func (r *UserRepository) SetResetOTP(_ context.Context, id, code string, expiresAt time.Time) error {
	_, err := r.modify(id, func(u *types.User) bool {
		u.ResetOTP = &code
		u.ResetOTPExpiresAt = &expiresAt
		return true
	})
	return err
}

func (r *UserRepository) ResetPassword(_ context.Context, id, code, passwordHash string) error {
	_, err := r.modify(id, func(u *types.User) bool {
		if u.ResetOTP == nil || *u.ResetOTP != code {
			return false
		}
		u.PasswordHash = passwordHash
		u.ResetOTP = nil
		u.ResetOTPExpiresAt = nil
		return true
	})
	return err
}

// modify applies fn to the stored user under the write lock. It returns
// store.ErrNotFound when the user is missing or fn declines the change.
func (r *UserRepository) modify(id string, fn func(u *types.User) bool) (types.User, error) {
	defer r.s.enter(r.tx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	u = cloneUser(u)
	if !fn(&u) {
		return types.User{}, store.ErrNotFound
	}
	u.UpdatedAt = r.s.now()
	r.s.users[id] = u
	return cloneUser(u), nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func (r *UserRepository) AddFriend(_ context.Context, userID, friendID string) error {
	defer r.s.enter(r.tx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	if _, ok := r.s.users[friendID]; !ok {
		return store.ErrNotFound
	}
	if u.HasFriend(friendID) {
		return nil
	}
	u.Friends = append(slices.Clone(u.Friends), friendID)
	r.s.users[userID] = u
	return nil
}

func (r *UserRepository) RemoveFriend(_ context.Context, userID, friendID string) error {
	defer r.s.enter(r.tx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return nil
	}
	u.Friends = slices.DeleteFunc(slices.Clone(u.Friends), func(id string) bool { return id == friendID })
	r.s.users[userID] = u
	return nil
}

// FriendRequestRepository implements services.FriendRequestRepository.
type FriendRequestRepository struct {
	s  *Store
	tx bool
}

func (r *FriendRequestRepository) GetByID(_ context.Context, id string) (types.FriendRequest, error) {
	defer r.s.enter(r.tx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	req, ok := r.s.requests[id]
	if !ok {
		return types.FriendRequest{}, store.ErrNotFound
	}
	return req, nil
}

// FindBetween returns the requests between a and b, oldest first.
func (r *FriendRequestRepository) FindBetween(_ context.Context, a, b string) ([]types.FriendRequest, error) {
	defer r.s.enter(r.tx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []types.FriendRequest{}
	for _, req := range r.s.requests {
		if req.Involves(a, b) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.s.order[out[i].ID] < r.s.order[out[j].ID]
	})
	return out, nil
}

// List returns the requests matching filter, newest first.
func (r *FriendRequestRepository) List(_ context.Context, filter types.FriendRequestFilter) ([]types.FriendRequest, error) {
	defer r.s.enter(r.tx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []types.FriendRequest{}
	for _, req := range r.s.requests {
		if filter.SenderID != "" && req.SenderID != filter.SenderID {
			continue
		}
		if filter.RecipientID != "" && req.RecipientID != filter.RecipientID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		return r.s.order[out[i].ID] > r.s.order[out[j].ID]
	})
	return out, nil
}

// Create stores req. A second pending request for the same unordered pair
// yields store.ErrConflict, as the SQL unique index does.
func (r *FriendRequestRepository) Create(_ context.Context, req types.FriendRequest) (types.FriendRequest, error) {
	defer r.s.enter(r.tx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if req.Status == "" {
		req.Status = types.FriendRequestPending
	}
	if _, exists := r.s.requests[req.ID]; exists {
		return types.FriendRequest{}, fmt.Errorf("%w: friend_requests_pkey", store.ErrConflict)
	}
	if req.Status == types.FriendRequestPending {
		for _, other := range r.s.requests {
			if other.Status == types.FriendRequestPending && other.Involves(req.SenderID, req.RecipientID) {
				return types.FriendRequest{}, fmt.Errorf("%w: friend_requests_pending_pair_key", store.ErrConflict)
			}
		}
	}

	now := r.s.now()
	req.CreatedAt = now
	req.UpdatedAt = now
	req.Sender = nil
	req.Recipient = nil
	r.s.requests[req.ID] = req
	r.s.nextSeq(req.ID)
	return req, nil
}

func (r *FriendRequestRepository) UpdateStatus(_ context.Context, id string, status types.FriendRequestStatus) (types.FriendRequest, error) {
	defer r.s.enter(r.tx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	req, ok := r.s.requests[id]
	if !ok {
		return types.FriendRequest{}, store.ErrNotFound
	}
	req.Status = status
	req.UpdatedAt = r.s.now()
	r.s.requests[id] = req
	return req, nil
}

func (r *FriendRequestRepository) Delete(_ context.Context, id string) error {
	defer r.s.enter(r.tx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.requests[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.requests, id)
	delete(r.s.order, id)
	return nil
}

func (r *FriendRequestRepository) DeleteBetween(_ context.Context, a, b, keepID string) (int64, error) {
	defer r.s.enter(r.tx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var deleted int64
	for id, req := range r.s.requests {
		if id == keepID || !req.Involves(a, b) {
			continue
		}
		delete(r.s.requests, id)
		delete(r.s.order, id)
		deleted++
	}
	return deleted, nil
}
