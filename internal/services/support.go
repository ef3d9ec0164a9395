package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/connectify/apiserver/internal/mail"
	"github.com/sirupsen/logrus"
)

type SupportInput struct {
	Email    string
	Username string
	Message  string
	Rating   int
}

// SupportService forwards support form messages to the support inbox.
type SupportService struct {
	mailer   Mailer
	receiver string
	log      logrus.FieldLogger
}

func NewSupportService(mailer Mailer, receiver string, log logrus.FieldLogger) *SupportService {
	return &SupportService{mailer: mailer, receiver: receiver, log: log}
}

func (s *SupportService) Submit(ctx context.Context, in SupportInput) error {
	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	in.Message = strings.TrimSpace(in.Message)

	var missing []string
	if in.Email == "" {
		missing = append(missing, "email")
	}
	if in.Username == "" {
		missing = append(missing, "username")
	}
	if in.Message == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return validationError("all fields are required", missing...)
	}
	if in.Rating < 0 || in.Rating > mail.MaxRating {
		return validationError(fmt.Sprintf("rating must be between 0 and %d", mail.MaxRating), "rating")
	}

	subject, body, err := mail.RenderSupport(mail.SupportMessage{
		Email:    in.Email,
		Username: in.Username,
		Message:  in.Message,
		Rating:   in.Rating,
	})
	if err != nil {
		return internalError("render support email", err)
	}
	if err := s.mailer.Send(ctx, s.receiver, subject, body); err != nil {
		s.log.WithError(err).WithField("from", in.Email).Error("support email delivery failed")
		return &Error{Kind: ErrEmailDelivery, Message: "failed to send support message", Err: err}
	}

	s.log.WithFields(logrus.Fields{"from": in.Email, "rating": in.Rating}).Info("support message forwarded")
	return nil
}
