// Package relay decides where a freshly authenticated browser goes next and
// builds the URL that carries its session across to that origin.
package relay

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// Action is what the browser should do.
type Action string

const (
	// ActionRedirect navigates to another application.
	ActionRedirect Action = "redirect"
	// ActionSetPassword opens the local set-password page.
	ActionSetPassword Action = "set_password"
	// ActionSignIn opens the sign-in page; no session was found.
	ActionSignIn Action = "sign_in"
	// ActionFallback shows the manual continue/retry UI.
	ActionFallback Action = "fallback"
)

// Decision is the single outcome of a relay.
type Decision struct {
	Action   Action `json:"action"`
	URL      string `json:"url"`
	Recovery bool   `json:"recovery"`
}

// Location is the callback URL as the browser received it.
type Location struct {
	Fragment string `json:"fragment"`
	Query    string `json:"query"`
}

// Tokens are session credentials forwarded as query parameters when there is
// no fragment to relay.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// recoveryTypes mark links that must end on the set-password page.
var recoveryTypes = map[string]bool{
	"recovery": true,
	"invite":   true,
	"signup":   true,
}

func values(s string) url.Values {
	v, _ := url.ParseQuery(strings.TrimPrefix(strings.TrimPrefix(s, "#"), "?"))
	return v
}

// Classify reads the link type from the fragment, then the query string,
// and reports whether it is a recovery-style link.
func Classify(loc Location) (linkType string, recovery bool) {
	linkType = values(loc.Fragment).Get("type")
	if linkType == "" {
		linkType = values(loc.Query).Get("type")
	}
	return linkType, recoveryTypes[linkType]
}

// BuildRedirect forwards a non-empty fragment verbatim onto dest. Without a
// fragment, tokens are appended as access_token/refresh_token query
// parameters.
func BuildRedirect(dest string, fragment string, tokens *Tokens) string {
	fragment = strings.TrimPrefix(fragment, "#")
	if fragment != "" {
		return strings.SplitN(dest, "#", 2)[0] + "#" + fragment
	}
	if tokens == nil || tokens.AccessToken == "" {
		return dest
	}
	u, err := url.Parse(dest)
	if err != nil {
		return dest
	}
	q := u.Query()
	q.Set("access_token", tokens.AccessToken)
	if tokens.RefreshToken != "" {
		q.Set("refresh_token", tokens.RefreshToken)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// AdminResolver reports whether an identity has administrator standing.
type AdminResolver interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// Destinations are the target URLs.
type Destinations struct {
	CustomerApp string
	AdminApp    string
	SetPassword string
	SignIn      string
}

// Relay makes the destination decision for one session.
type Relay struct {
	admins  AdminResolver
	dest    Destinations
	log     *slog.Logger
	timeout time.Duration
}

// New creates a Relay. timeout bounds the permission lookup.
func New(admins AdminResolver, dest Destinations, log *slog.Logger, timeout time.Duration) *Relay {
	return &Relay{admins: admins, dest: dest, log: log, timeout: timeout}
}

// Destination picks the application for userID. A failed lookup, including
// a missing profile, picks the customer application.
func (r *Relay) Destination(ctx context.Context, userID string) string {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	admin, err := r.admins.IsAdmin(ctx, userID)
	if err != nil {
		r.log.WarnContext(ctx, "permission lookup failed; using customer app", "user_id", userID, "err", err)
		return r.dest.CustomerApp
	}
	if admin {
		return r.dest.AdminApp
	}
	return r.dest.CustomerApp
}

// SetPassword is the decision for recovery-style links.
func (r *Relay) SetPassword() Decision {
	return Decision{Action: ActionSetPassword, URL: r.dest.SetPassword, Recovery: true}
}

// Decide routes an authenticated session that is not a recovery flow.
func (r *Relay) Decide(ctx context.Context, loc Location, userID string, tokens *Tokens) Decision {
	dest := r.Destination(ctx, userID)
	return Decision{Action: ActionRedirect, URL: BuildRedirect(dest, loc.Fragment, tokens)}
}

// Manual is the target of the fallback UI's continue button.
func (r *Relay) Manual(loc Location) string {
	if _, recovery := Classify(loc); recovery {
		return r.dest.SetPassword
	}
	return r.dest.SignIn
}
