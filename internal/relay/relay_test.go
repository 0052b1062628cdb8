package relay_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/d9705996/protestpro/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type admins map[string]bool

func (a admins) IsAdmin(_ context.Context, userID string) (bool, error) {
	v, ok := a[userID]
	if !ok {
		return false, errors.New("profile not found")
	}
	return v, nil
}

var dest = relay.Destinations{
	CustomerApp: "https://portal.example.com",
	AdminApp:    "https://admin.example.com",
	SetPassword: "/auth/set-password",
	SignIn:      "/auth/sign-in",
}

func newRelay() *relay.Relay {
	return relay.New(admins{"boss": true, "cust": false}, dest, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		loc      relay.Location
		typ      string
		recovery bool
	}{
		{relay.Location{Fragment: "#access_token=a&type=recovery"}, "recovery", true},
		{relay.Location{Fragment: "access_token=a&type=invite"}, "invite", true},
		{relay.Location{Query: "?type=signup"}, "signup", true},
		{relay.Location{Fragment: "#access_token=a&type=magiclink"}, "magiclink", false},
		{relay.Location{Fragment: "#type=recovery", Query: "type=magiclink"}, "recovery", true},
		{relay.Location{}, "", false},
	}
	for _, tc := range cases {
		typ, rec := relay.Classify(tc.loc)
		assert.Equal(t, tc.typ, typ)
		assert.Equal(t, tc.recovery, rec)
	}
}

func TestBuildRedirect_FragmentTakesPrecedence(t *testing.T) {
	frag := "#access_token=abc.def&refresh_token=r1&expires_in=3600&token_type=bearer"
	got := relay.BuildRedirect("https://portal.example.com", frag, &relay.Tokens{AccessToken: "fresh", RefreshToken: "fresh-r"})
	assert.Equal(t, "https://portal.example.com#access_token=abc.def&refresh_token=r1&expires_in=3600&token_type=bearer", got)
}

func TestBuildRedirect_QueryFallback(t *testing.T) {
	got := relay.BuildRedirect("https://portal.example.com/home", "", &relay.Tokens{AccessToken: "a b", RefreshToken: "r"})
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/home", u.Path)
	assert.Equal(t, "a b", u.Query().Get("access_token"))
	assert.Equal(t, "r", u.Query().Get("refresh_token"))

	assert.Equal(t, "https://portal.example.com", relay.BuildRedirect("https://portal.example.com", "#", nil))
}

func TestDestination(t *testing.T) {
	r := newRelay()
	ctx := context.Background()
	assert.Equal(t, dest.AdminApp, r.Destination(ctx, "boss"))
	assert.Equal(t, dest.CustomerApp, r.Destination(ctx, "cust"))
	assert.Equal(t, dest.CustomerApp, r.Destination(ctx, "ghost"), "lookup failure defaults to customer app")
}

func session(userID string) relay.Producer {
	return func(context.Context) (*relay.SessionEvent, error) {
		return &relay.SessionEvent{UserID: userID, Tokens: &relay.Tokens{AccessToken: "tok-" + userID}}, nil
	}
}

func none(context.Context) (*relay.SessionEvent, error) { return nil, nil }

func TestResolve_RecoveryNeverRedirects(t *testing.T) {
	c := relay.NewCoordinator(newRelay(), time.Second)
	d := c.Resolve(context.Background(), relay.Location{Fragment: "#access_token=x&type=recovery"}, session("boss"))
	assert.Equal(t, relay.ActionSetPassword, d.Action)
	assert.Equal(t, dest.SetPassword, d.URL)
	assert.True(t, d.Recovery)
}

func TestResolve_RecoveryEventFromProducer(t *testing.T) {
	c := relay.NewCoordinator(newRelay(), time.Second)
	recovering := func(context.Context) (*relay.SessionEvent, error) {
		return &relay.SessionEvent{UserID: "cust", Recovery: true}, nil
	}
	slow := func(ctx context.Context) (*relay.SessionEvent, error) {
		time.Sleep(50 * time.Millisecond)
		return &relay.SessionEvent{UserID: "cust"}, nil
	}
	d := c.Resolve(context.Background(), relay.Location{}, slow, recovering)
	assert.Equal(t, relay.ActionSetPassword, d.Action)
}

func TestResolve_AdminWithFragment(t *testing.T) {
	c := relay.NewCoordinator(newRelay(), time.Second)
	d := c.Resolve(context.Background(), relay.Location{Fragment: "#access_token=x&refresh_token=y"}, session("boss"), session("boss"))
	assert.Equal(t, relay.ActionRedirect, d.Action)
	assert.Equal(t, "https://admin.example.com#access_token=x&refresh_token=y", d.URL)
}

func TestResolve_CustomerWithQueryTokens(t *testing.T) {
	c := relay.NewCoordinator(newRelay(), time.Second)
	d := c.Resolve(context.Background(), relay.Location{}, none, session("cust"))
	assert.Equal(t, relay.ActionRedirect, d.Action)
	assert.Equal(t, "https://portal.example.com?access_token=tok-cust", d.URL)
}

func TestResolve_NoSession(t *testing.T) {
	c := relay.NewCoordinator(newRelay(), time.Second)
	d := c.Resolve(context.Background(), relay.Location{}, none, none)
	assert.Equal(t, relay.ActionSignIn, d.Action)
}

func TestResolve_TimeoutFallback(t *testing.T) {
	c := relay.NewCoordinator(newRelay(), 20*time.Millisecond)
	hang := func(ctx context.Context) (*relay.SessionEvent, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	d := c.Resolve(context.Background(), relay.Location{}, hang)
	assert.Equal(t, relay.ActionFallback, d.Action)
	assert.Equal(t, dest.SignIn, d.URL)
}

func TestFragmentSession(t *testing.T) {
	verify := func(tok string) (string, error) {
		if tok == "good" {
			return "cust", nil
		}
		return "", errors.New("bad token")
	}
	ctx := context.Background()

	ev, err := relay.FragmentSession(relay.Location{Fragment: "#access_token=good&refresh_token=r1"}, verify)(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cust", ev.UserID)
	assert.Equal(t, "r1", ev.Tokens.RefreshToken)
	assert.False(t, ev.Recovery)

	ev, err = relay.FragmentSession(relay.Location{Fragment: "#access_token=good&type=recovery"}, verify)(ctx)
	require.NoError(t, err)
	assert.True(t, ev.Recovery)

	ev, err = relay.FragmentSession(relay.Location{Query: "access_token=good"}, verify)(ctx)
	require.NoError(t, err)
	assert.Nil(t, ev, "only the fragment carries a session")

	_, err = relay.FragmentSession(relay.Location{Fragment: "access_token=forged"}, verify)(ctx)
	assert.Error(t, err)
}

func TestResolve_FragmentSessionRedirectsAdmin(t *testing.T) {
	c := relay.NewCoordinator(newRelay(), time.Second)
	loc := relay.Location{Fragment: "#access_token=good&refresh_token=r1"}
	verify := func(string) (string, error) { return "boss", nil }

	d := c.Resolve(context.Background(), loc, none, relay.FragmentSession(loc, verify))
	assert.Equal(t, relay.ActionRedirect, d.Action)
	assert.Equal(t, dest.AdminApp+"#access_token=good&refresh_token=r1", d.URL)
}
