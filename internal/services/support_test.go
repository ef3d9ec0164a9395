package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/connectify/apiserver/internal/services"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupportSubmit(t *testing.T) {
	logger, _ := test.NewNullLogger()
	mailer := &fakeMailer{}
	svc := services.NewSupportService(mailer, "help@connectify.local", logger)

	err := svc.Submit(context.Background(), services.SupportInput{
		Email:    " ana@example.com ",
		Username: "Ana",
		Message:  "Love it <3",
		Rating:   3,
	})
	require.NoError(t, err)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "help@connectify.local", mailer.sent[0].To)
	assert.Equal(t, "Support Feedback from Ana", mailer.sent[0].Subject)
	assert.Contains(t, mailer.sent[0].HTML, "★★★☆☆")
	assert.Contains(t, mailer.sent[0].HTML, "Love it &lt;3")
}

func TestSupportSubmitValidation(t *testing.T) {
	logger, _ := test.NewNullLogger()
	mailer := &fakeMailer{}
	svc := services.NewSupportService(mailer, "help@connectify.local", logger)
	ctx := context.Background()

	err := svc.Submit(ctx, services.SupportInput{Username: "Ana", Message: "  "})
	svcErr := requireKind(t, err, services.ErrValidation)
	assert.Equal(t, "all fields are required", svcErr.Message)
	assert.Equal(t, []string{"email", "message"}, svcErr.Fields)

	err = svc.Submit(ctx, services.SupportInput{Email: "ana@example.com", Username: "Ana", Message: "hi", Rating: 6})
	svcErr = requireKind(t, err, services.ErrValidation)
	assert.Equal(t, []string{"rating"}, svcErr.Fields)

	assert.Empty(t, mailer.sent)
}

func TestSupportSubmitDeliveryFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	mailer := &fakeMailer{err: errors.New("smtp down")}
	svc := services.NewSupportService(mailer, "help@connectify.local", logger)

	err := svc.Submit(context.Background(), services.SupportInput{
		Email:    "ana@example.com",
		Username: "Ana",
		Message:  "hi",
	})
	svcErr := requireKind(t, err, services.ErrEmailDelivery)
	assert.Equal(t, "failed to send support message", svcErr.Message)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "support email delivery failed", hook.LastEntry().Message)
}
