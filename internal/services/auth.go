package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/connectify/apiserver/internal/mail"
	"github.com/connectify/apiserver/internal/store"
	"github.com/connectify/apiserver/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 6

	avatarURLPattern = "https://avatar.iran.liara.run/public/%d.png"
	avatarCount      = 100

	invalidCredentials = "invalid email or password"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Mailer delivers HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

type SignupInput struct {
	Email    string
	Password string
	FullName string
}

// OnboardInput carries the profile submitted during onboarding. ProfilePic is
// optional; the other fields are required.
type OnboardInput struct {
	FullName       string
	Bio            string
	NativeLanguage string
	Location       string
	ProfilePic     *string
}

// AuthService owns account creation, login and the email verification and
// password reset one-time-code flows.
type AuthService struct {
	users      UserRepository
	mailer     Mailer
	directory  *directoryNotifier
	otp        OTPGenerator
	now        func() time.Time
	bcryptCost int
	log        logrus.FieldLogger
}

type AuthOption func(*AuthService)

func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

func WithOTPGenerator(g OTPGenerator) AuthOption {
	return func(s *AuthService) { s.otp = g }
}

func WithBcryptCost(cost int) AuthOption {
	return func(s *AuthService) { s.bcryptCost = cost }
}

func WithDirectoryTimeout(timeout time.Duration) AuthOption {
	return func(s *AuthService) { s.directory.timeout = timeout }
}

func NewAuthService(users UserRepository, mailer Mailer, directory DirectorySync, log logrus.FieldLogger, opts ...AuthOption) *AuthService {
	s := &AuthService{
		users:      users,
		mailer:     mailer,
		directory:  newDirectoryNotifier(directory, defaultDirectoryTimeout, log),
		otp:        NumericOTP{Digits: defaultOTPDigits},
		now:        time.Now,
		bcryptCost: bcrypt.DefaultCost,
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RandomAvatarURL picks one of the preset avatars.
func RandomAvatarURL() string {
	return fmt.Sprintf(avatarURLPattern, rand.IntN(avatarCount)+1)
}

func (s *AuthService) Signup(ctx context.Context, in SignupInput) (types.User, error) {
	email := strings.TrimSpace(in.Email)
	fullName := strings.TrimSpace(in.FullName)

	var missing []string
	if email == "" {
		missing = append(missing, "email")
	}
	if in.Password == "" {
		missing = append(missing, "password")
	}
	if fullName == "" {
		missing = append(missing, "fullName")
	}
	if len(missing) > 0 {
		return types.User{}, validationError("all fields are required", missing...)
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return types.User{}, validationError(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if !emailPattern.MatchString(email) {
		return types.User{}, validationError("invalid email format")
	}

	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return types.User{}, conflictError("email already exists, please use a different one")
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, internalError("lookup user by email", err)
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return types.User{}, err
	}

	created, err := s.users.Create(ctx, types.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		ProfilePic:   RandomAvatarURL(),
		Friends:      []string{},
	})
	if errors.Is(err, store.ErrConflict) {
		return types.User{}, conflictError("email already exists, please use a different one")
	}
	if err != nil {
		return types.User{}, internalError("create user", err)
	}

	s.log.WithField("user_id", created.ID).Info("user signed up")
	s.directory.notify(ctx, created)
	return created, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (types.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return types.User{}, validationError("all fields are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, authError(invalidCredentials)
	}
	if err != nil {
		return types.User{}, internalError("lookup user by email", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, authError(invalidCredentials)
	}
	return user, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (types.User, error) {
	return s.getUser(ctx, userID)
}

func (s *AuthService) RequestSignupOtp(ctx context.Context, email string) error {
	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return conflictError("user already verified")
	}

	code, expiresAt, err := s.issueOTP()
	if err != nil {
		return err
	}
	if err := s.users.SetSignupOTP(ctx, user.ID, code, expiresAt); err != nil {
		return internalError("store signup otp", err)
	}

	return s.sendOTP(ctx, user.Email, mail.PurposeVerifyEmail, code)
}

func (s *AuthService) VerifySignupOtp(ctx context.Context, email, code string) (types.User, error) {
	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return types.User{}, err
	}
	if user.IsVerified {
		return types.User{}, conflictError("user already verified")
	}
	code = strings.TrimSpace(code)
	if !otpValid(user.OTP, user.OTPExpiresAt, code, s.now()) {
		return types.User{}, validationError("invalid or expired OTP")
	}

	updated, err := s.users.MarkVerified(ctx, user.ID, code)
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, validationError("invalid or expired OTP")
	}
	if err != nil {
		return types.User{}, internalError("mark user verified", err)
	}
	s.log.WithField("user_id", updated.ID).Info("email verified")
	return updated, nil
}

func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return err
	}

	code, expiresAt, err := s.issueOTP()
	if err != nil {
		return err
	}
	if err := s.users.SetResetOTP(ctx, user.ID, code, expiresAt); err != nil {
		return internalError("store reset otp", err)
	}

	return s.sendOTP(ctx, user.Email, mail.PurposePasswordReset, code)
}

func (s *AuthService) VerifyPasswordResetOtp(ctx context.Context, email, code, newPassword string) error {
	if newPassword == "" {
		return validationError("all fields are required", "newPassword")
	}
	if utf8.RuneCountInString(newPassword) < MinPasswordLength {
		return validationError(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if !otpValid(user.ResetOTP, user.ResetOTPExpiresAt, code, s.now()) {
		return validationError("invalid or expired OTP")
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	err = s.users.ResetPassword(ctx, user.ID, code, hash)
	if errors.Is(err, store.ErrNotFound) {
		return validationError("invalid or expired OTP")
	}
	if err != nil {
		return internalError("store new password", err)
	}
	s.log.WithField("user_id", user.ID).Info("password reset")
	return nil
}

func (s *AuthService) Onboard(ctx context.Context, userID string, in OnboardInput) (types.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Bio = strings.TrimSpace(in.Bio)
	in.NativeLanguage = strings.TrimSpace(in.NativeLanguage)
	in.Location = strings.TrimSpace(in.Location)

	var missing []string
	if in.FullName == "" {
		missing = append(missing, "fullName")
	}
	if in.Bio == "" {
		missing = append(missing, "bio")
	}
	if in.NativeLanguage == "" {
		missing = append(missing, "nativeLanguage")
	}
	if in.Location == "" {
		missing = append(missing, "location")
	}
	if len(missing) > 0 {
		return types.User{}, validationError("all fields are required", missing...)
	}

	onboarded := true
	patch := types.UserPatch{
		FullName:       &in.FullName,
		Bio:            &in.Bio,
		NativeLanguage: &in.NativeLanguage,
		Location:       &in.Location,
		IsOnboarded:    &onboarded,
	}
	if in.ProfilePic != nil && strings.TrimSpace(*in.ProfilePic) != "" {
		pic := strings.TrimSpace(*in.ProfilePic)
		noKey := ""
		patch.ProfilePic = &pic
		patch.ProfilePicKey = &noKey
	}

	updated, err := s.users.UpdateProfile(ctx, userID, patch)
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, notFoundError("user not found")
	}
	if err != nil {
		return types.User{}, internalError("onboard user", err)
	}

	s.directory.notify(ctx, updated)
	return updated, nil
}

func (s *AuthService) getUser(ctx context.Context, userID string) (types.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, notFoundError("user not found")
	}
	if err != nil {
		return types.User{}, internalError("get user", err)
	}
	return user, nil
}

func (s *AuthService) userByEmail(ctx context.Context, email string) (types.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return types.User{}, validationError("email is required", "email")
	}
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, notFoundError("user not found")
	}
	if err != nil {
		return types.User{}, internalError("lookup user by email", err)
	}
	return user, nil
}

func (s *AuthService) issueOTP() (string, time.Time, error) {
	code, err := s.otp.Generate()
	if err != nil {
		return "", time.Time{}, internalError("issue otp", err)
	}
	return code, s.now().Add(OTPTTL), nil
}

func (s *AuthService) sendOTP(ctx context.Context, to string, purpose mail.Purpose, code string) error {
	subject, body, err := mail.RenderOTP(purpose, code, OTPTTL)
	if err != nil {
		return internalError("render otp email", err)
	}
	if err := s.mailer.Send(ctx, to, subject, body); err != nil {
		s.log.WithError(err).WithField("purpose", purpose).Error("otp email delivery failed")
		return emailDeliveryError(err)
	}
	return nil
}

func (s *AuthService) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", validationError("password must be at most 72 bytes")
	}
	if err != nil {
		return "", internalError("hash password", err)
	}
	return string(hash), nil
}
