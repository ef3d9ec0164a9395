package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/connectify/apiserver/internal/store"
	"github.com/connectify/apiserver/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	searchLimit         = 20
	avatarKeyPrefix     = "avatars/"
	defaultUploadExpiry = 15 * time.Minute
)

// AvatarStorage is the subset of object storage used for profile pictures.
type AvatarStorage interface {
	PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error)
	PublicURL(key string) string
	Delete(ctx context.Context, key string) error
}

// ProfilePatch holds the profile fields a user may change after onboarding.
// Nil fields are left untouched.
type ProfilePatch struct {
	FullName       *string `json:"fullName"`
	Bio            *string `json:"bio"`
	NativeLanguage *string `json:"nativeLanguage"`
	Location       *string `json:"location"`
}

type AvatarUpload struct {
	UploadURL string    `json:"uploadUrl"`
	PublicURL string    `json:"publicUrl"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ProfileService struct {
	users        UserRepository
	storage      AvatarStorage
	directory    *directoryNotifier
	uploadExpiry time.Duration
	now          func() time.Time
	log          logrus.FieldLogger
}

// NewProfileService builds the service. storage may be nil, in which case
// avatar uploads are unavailable.
func NewProfileService(users UserRepository, storage AvatarStorage, directory DirectorySync, uploadExpiry time.Duration, log logrus.FieldLogger) *ProfileService {
	if uploadExpiry <= 0 {
		uploadExpiry = defaultUploadExpiry
	}
	return &ProfileService{
		users:        users,
		storage:      storage,
		directory:    newDirectoryNotifier(directory, defaultDirectoryTimeout, log),
		uploadExpiry: uploadExpiry,
		now:          time.Now,
		log:          log,
	}
}

func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (types.User, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return types.User{}, err
	}

	var changes types.UserPatch
	nameChanged := false
	if patch.FullName != nil {
		name := strings.TrimSpace(*patch.FullName)
		if name == "" {
			return types.User{}, validationError("fullName cannot be empty", "fullName")
		}
		nameChanged = name != user.FullName
		changes.FullName = &name
	}
	changes.Bio = trimmed(patch.Bio)
	changes.NativeLanguage = trimmed(patch.NativeLanguage)
	changes.Location = trimmed(patch.Location)

	updated, err := s.save(ctx, userID, changes)
	if err != nil {
		return types.User{}, err
	}
	if nameChanged {
		s.directory.notify(ctx, updated)
	}
	return updated, nil
}

// UpdateAvatar points the profile picture at url. key is the storage key of
// an uploaded object and must belong to the user; it is empty for external
// URLs. A previously uploaded object is removed when it is replaced.
func (s *ProfileService) UpdateAvatar(ctx context.Context, userID, url, key string) (types.User, error) {
	url = strings.TrimSpace(url)
	key = strings.TrimSpace(key)
	if url == "" {
		return types.User{}, validationError("profilePic is required", "profilePic")
	}
	if key != "" && !strings.HasPrefix(key, avatarKeyPrefix+userID+"/") {
		return types.User{}, forbiddenError("avatar key does not belong to the user")
	}

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return types.User{}, err
	}

	oldKey := user.ProfilePicKey
	updated, err := s.save(ctx, userID, types.UserPatch{ProfilePic: &url, ProfilePicKey: &key})
	if err != nil {
		return types.User{}, err
	}

	if oldKey != "" && oldKey != key && s.storage != nil {
		if err := s.storage.Delete(ctx, oldKey); err != nil {
			s.log.WithError(err).WithField("key", oldKey).Warn("failed to delete previous avatar")
		}
	}
	s.directory.notify(ctx, updated)
	return updated, nil
}

func (s *ProfileService) Search(ctx context.Context, userID, query string) ([]types.UserSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []types.UserSummary{}, nil
	}

	users, err := s.users.SearchOnboarded(ctx, query, userID, searchLimit)
	if err != nil {
		return nil, internalError("search users", err)
	}
	return summaries(users), nil
}

func (s *ProfileService) AvatarUploadURL(ctx context.Context, userID string) (AvatarUpload, error) {
	if s.storage == nil {
		return AvatarUpload{}, &Error{Kind: ErrInternal, Message: "avatar uploads are not configured"}
	}
	if _, err := s.getUser(ctx, userID); err != nil {
		return AvatarUpload{}, err
	}

	key := fmt.Sprintf("%s%s/%s", avatarKeyPrefix, userID, uuid.NewString())
	uploadURL, err := s.storage.PresignPut(ctx, key, s.uploadExpiry)
	if err != nil {
		return AvatarUpload{}, internalError("presign avatar upload", err)
	}

	return AvatarUpload{
		UploadURL: uploadURL,
		PublicURL: s.storage.PublicURL(key),
		Key:       key,
		ExpiresAt: s.now().Add(s.uploadExpiry).UTC(),
	}, nil
}

func (s *ProfileService) getUser(ctx context.Context, userID string) (types.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, notFoundError("user not found")
	}
	if err != nil {
		return types.User{}, internalError("get user", err)
	}
	return user, nil
}

func (s *ProfileService) save(ctx context.Context, userID string, patch types.UserPatch) (types.User, error) {
	updated, err := s.users.UpdateProfile(ctx, userID, patch)
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, notFoundError("user not found")
	}
	if err != nil {
		return types.User{}, internalError("update user", err)
	}
	return updated, nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
