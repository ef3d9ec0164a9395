package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// Purpose selects the wording of an OTP email.
type Purpose string

const (
	PurposeVerifyEmail   Purpose = "verify-email"
	PurposePasswordReset Purpose = "password-reset"
)

var otpTemplate = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: Arial, sans-serif; background: #f4f4f7; padding: 24px;">
    <div style="max-width: 480px; margin: 0 auto; background: #ffffff; border-radius: 8px; padding: 32px;">
      <h2 style="margin-top: 0;">{{.Heading}}</h2>
      <p>{{.Intro}}</p>
      <p style="font-size: 32px; font-weight: bold; letter-spacing: 8px; text-align: center;">{{.Code}}</p>
      <p>This code expires in {{.Minutes}} minutes.</p>
      <p style="color: #888888; font-size: 12px;">If you did not request this, you can ignore this email.</p>
    </div>
  </body>
</html>
`))

type otpView struct {
	Heading string
	Intro   string
	Code    string
	Minutes int
}

// RenderOTP returns the subject and HTML body for a one-time code email.
func RenderOTP(purpose Purpose, code string, ttl time.Duration) (string, string, error) {
	view := otpView{Code: code, Minutes: int(ttl / time.Minute)}
	var subject string

	switch purpose {
	case PurposeVerifyEmail:
		subject = "Verify your email"
		view.Heading = "Verify your email"
		view.Intro = "Use the code below to verify your account."
	case PurposePasswordReset:
		subject = "Reset your password"
		view.Heading = "Reset your password"
		view.Intro = "Use the code below to choose a new password."
	default:
		return "", "", fmt.Errorf("unknown email purpose %q", purpose)
	}

	var buf bytes.Buffer
	if err := otpTemplate.Execute(&buf, view); err != nil {
		return "", "", fmt.Errorf("render otp email: %w", err)
	}
	return subject, buf.String(), nil
}

// MaxRating is the number of stars in a support rating.
const MaxRating = 5

var supportTemplate = template.Must(template.New("support").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: Arial, sans-serif; background: #f4f4f7; padding: 24px;">
    <div style="max-width: 560px; margin: 0 auto; background: #ffffff; border-radius: 8px; padding: 32px;">
      <h2 style="margin-top: 0;">New support message</h2>
      <p><strong>From:</strong> {{.Username}} &lt;{{.Email}}&gt;</p>
      <p><strong>Rating:</strong> <span style="color: #f5a623; font-size: 20px;">{{.Stars}}</span> ({{.Rating}}/5)</p>
      <p style="white-space: pre-wrap; border-left: 4px solid #dddddd; padding-left: 12px;">{{.Message}}</p>
    </div>
  </body>
</html>
`))

// SupportMessage is feedback submitted from the support form.
type SupportMessage struct {
	Email    string
	Username string
	Message  string
	Rating   int
}

type supportView struct {
	SupportMessage
	Stars string
}

// RenderSupport returns the subject and HTML body forwarded to the support
// inbox. User input is HTML escaped.
func RenderSupport(msg SupportMessage) (string, string, error) {
	if msg.Rating < 0 || msg.Rating > MaxRating {
		return "", "", fmt.Errorf("rating %d out of range", msg.Rating)
	}

	view := supportView{
		SupportMessage: msg,
		Stars:          Stars(msg.Rating),
	}
	var buf bytes.Buffer
	if err := supportTemplate.Execute(&buf, view); err != nil {
		return "", "", fmt.Errorf("render support email: %w", err)
	}
	return "Support Feedback from " + msg.Username, buf.String(), nil
}

// Stars draws rating as filled stars padded with empty ones.
func Stars(rating int) string {
	rating = min(max(rating, 0), MaxRating)
	return strings.Repeat("★", rating) + strings.Repeat("☆", MaxRating-rating)
}
