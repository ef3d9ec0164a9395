package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/connectify/apiserver/internal/services"
	"github.com/connectify/apiserver/internal/store/memory"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type sentMail struct {
	To      string
	Subject string
	HTML    string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, HTML: html})
	return nil
}

type fakeDirectory struct {
	mu    sync.Mutex
	users []services.DirectoryUser
	err   error
}

func (d *fakeDirectory) UpsertUser(_ context.Context, user services.DirectoryUser) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.users = append(d.users, user)
	return nil
}

func (d *fakeDirectory) upserts() []services.DirectoryUser {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]services.DirectoryUser(nil), d.users...)
}

// sequenceOTP hands out codes in order and repeats the last one.
type sequenceOTP struct {
	codes []string
	next  int
}

func (g *sequenceOTP) Generate() (string, error) {
	if len(g.codes) == 0 {
		return "", errors.New("no codes")
	}
	code := g.codes[min(g.next, len(g.codes)-1)]
	g.next++
	return code, nil
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type authFixture struct {
	svc       *services.AuthService
	store     *memory.Store
	mailer    *fakeMailer
	directory *fakeDirectory
	otp       *sequenceOTP
	clock     *testClock
	hook      *test.Hook
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	f := &authFixture{
		store:     memory.New(),
		mailer:    &fakeMailer{},
		directory: &fakeDirectory{},
		otp:       &sequenceOTP{codes: []string{"123456"}},
		clock:     &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		hook:      hook,
	}
	f.svc = services.NewAuthService(
		f.store.Users(),
		f.mailer,
		f.directory,
		logger,
		services.WithClock(f.clock.Now),
		services.WithOTPGenerator(f.otp),
		services.WithBcryptCost(bcrypt.MinCost),
	)
	return f
}

func (f *authFixture) signup(t *testing.T, email, name string) string {
	t.Helper()

	user, err := f.svc.Signup(context.Background(), services.SignupInput{
		Email:    email,
		Password: "secret123",
		FullName: name,
	})
	require.NoError(t, err)
	return user.ID
}

// serviceWith builds a second service over users sharing the fixture's
// mailer, directory and clock.
func (f *authFixture) serviceWith(users services.UserRepository, codes ...string) *services.AuthService {
	logger, _ := test.NewNullLogger()
	return services.NewAuthService(
		users,
		f.mailer,
		f.directory,
		logger,
		services.WithClock(f.clock.Now),
		services.WithOTPGenerator(&sequenceOTP{codes: codes}),
		services.WithBcryptCost(bcrypt.MinCost),
	)
}

func requireKind(t *testing.T, err, kind error) *services.Error {
	t.Helper()

	require.Error(t, err)
	require.ErrorIs(t, err, kind)
	var svcErr *services.Error
	require.True(t, errors.As(err, &svcErr), "expected *services.Error, got %T", err)
	return svcErr
}
