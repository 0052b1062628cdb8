package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/d9705996/protestpro/internal/auth"
)

// Inviter sends the emails that let a new account set its password.
type Inviter interface {
	Invite(ctx context.Context, email, redirectTo string) error
	Recover(ctx context.Context, email, redirectTo string) error
}

// Message is an outgoing email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// LogMailer writes messages to the log instead of delivering them.
type LogMailer struct {
	Log *slog.Logger
}

func (m LogMailer) Send(ctx context.Context, msg Message) error {
	m.Log.InfoContext(ctx, "email", "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}

// LocalInviter issues a session for a local account and mails a link that
// carries it in the URL fragment, the way an implicit-grant provider does.
type LocalInviter struct {
	accounts *LocalProvider
	sessions *auth.Sessions
	mailer   Mailer
}

// NewLocalInviter creates a LocalInviter.
func NewLocalInviter(accounts *LocalProvider, sessions *auth.Sessions, mailer Mailer) *LocalInviter {
	return &LocalInviter{accounts: accounts, sessions: sessions, mailer: mailer}
}

func (i *LocalInviter) Invite(ctx context.Context, email, redirectTo string) error {
	return i.send(ctx, email, redirectTo, "invite", "You're invited: set your password")
}

func (i *LocalInviter) Recover(ctx context.Context, email, redirectTo string) error {
	return i.send(ctx, email, redirectTo, "recovery", "Reset your password")
}

func (i *LocalInviter) send(ctx context.Context, email, redirectTo, linkType, subject string) error {
	acct, err := i.accounts.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("%s %s: %w", linkType, email, err)
	}
	sess, err := i.sessions.Issue(ctx, acct.ID, acct.Email)
	if err != nil {
		return fmt.Errorf("%s session: %w", linkType, err)
	}
	link, err := ActionLink(redirectTo, sess, linkType)
	if err != nil {
		return err
	}
	return i.mailer.Send(ctx, Message{
		To:      acct.Email,
		Subject: subject,
		Body:    "Follow this link to set your password: " + link,
	})
}

// ActionLink appends session tokens and the link type to redirectTo as a
// URL fragment.
func ActionLink(redirectTo string, sess *auth.Session, linkType string) (string, error) {
	u, err := url.Parse(redirectTo)
	if err != nil {
		return "", fmt.Errorf("parse redirect: %w", err)
	}
	frag := url.Values{}
	frag.Set("access_token", sess.AccessToken)
	frag.Set("refresh_token", sess.RefreshToken)
	frag.Set("expires_in", strconv.Itoa(sess.ExpiresIn))
	frag.Set("token_type", "bearer")
	frag.Set("type", linkType)
	u.Fragment = ""
	return u.String() + "#" + frag.Encode(), nil
}
