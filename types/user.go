package types

import "time"

// User represents an account in the system.
// It contains identity, profile, verification state and the friend set.
type User struct {
	// ID is the unique identifier of the user (UUID).
	ID string `json:"_id" db:"id"`

	// Email is the unique address the user signs in with.
	// Stored exactly as submitted; comparisons are case-sensitive.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// FullName is the user's display name.
	FullName string `json:"fullName" db:"full_name"`

	// Bio is a free-form self description.
	Bio string `json:"bio" db:"bio"`

	// NativeLanguage is the language the user offers in an exchange.
	NativeLanguage string `json:"nativeLanguage" db:"native_language"`

	// Location is a free-form place name.
	Location string `json:"location" db:"location"`

	// ProfilePic is the URL of the user's avatar.
	ProfilePic string `json:"profilePic" db:"profile_pic"`

	// ProfilePicKey is the object storage key of an uploaded avatar.
	// Empty when ProfilePic points at a preset image.
	ProfilePicKey string `json:"-" db:"profile_pic_key"`

	// IsOnboarded flips to true once the onboarding form is submitted.
	IsOnboarded bool `json:"isOnboarded" db:"is_onboarded"`

	// IsVerified reports whether the email address was confirmed with an OTP.
	IsVerified bool `json:"isVerified" db:"is_verified"`

	// OTP is the pending signup verification code, if any.
	OTP *string `json:"-" db:"otp"`

	// OTPExpiresAt is when OTP stops being accepted.
	OTPExpiresAt *time.Time `json:"-" db:"otp_expires_at"`

	// ResetOTP is the pending password reset code, if any.
	ResetOTP *string `json:"-" db:"reset_otp"`

	// ResetOTPExpiresAt is when ResetOTP stops being accepted.
	ResetOTPExpiresAt *time.Time `json:"-" db:"reset_otp_expires_at"`

	// Friends holds the ids of the user's friends. The relation is symmetric.
	Friends []string `json:"friends"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// HasFriend reports whether id is in the user's friend set.
func (u User) HasFriend(id string) bool {
	for _, friendID := range u.Friends {
		if friendID == id {
			return true
		}
	}
	return false
}

// Summary returns the public profile projection of the user.
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:             u.ID,
		FullName:       u.FullName,
		ProfilePic:     u.ProfilePic,
		NativeLanguage: u.NativeLanguage,
		Bio:            u.Bio,
		Location:       u.Location,
	}
}

// UserSummary is the profile subset shown to other users.
type UserSummary struct {
	ID             string `json:"_id"`
	FullName       string `json:"fullName"`
	ProfilePic     string `json:"profilePic"`
	NativeLanguage string `json:"nativeLanguage"`
	Bio            string `json:"bio"`
	Location       string `json:"location"`
}

// UserPatch lists the profile columns to change. Nil fields keep their
// stored value.
type UserPatch struct {
	FullName       *string
	Bio            *string
	NativeLanguage *string
	Location       *string
	ProfilePic     *string
	ProfilePicKey  *string
	IsOnboarded    *bool
}
