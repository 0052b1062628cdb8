package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// SessionEvent is a session observed by a producer. Recovery is set for a
// password-recovery sign-in.
type SessionEvent struct {
	UserID   string
	Tokens   *Tokens
	Recovery bool
}

// Producer reports a session, or nil when it found none.
type Producer func(ctx context.Context) (*SessionEvent, error)

// Coordinator runs session producers concurrently and commits exactly one
// navigation decision.
type Coordinator struct {
	relay   *Relay
	timeout time.Duration
}

// NewCoordinator creates a Coordinator. After timeout without a decision the
// outcome is ActionFallback.
func NewCoordinator(r *Relay, timeout time.Duration) *Coordinator {
	return &Coordinator{relay: r, timeout: timeout}
}

// Resolve classifies the link and, unless it is a recovery flow, races the
// producers. The recovery flag is shared by every producer and is checked
// right before a cross-domain redirect is committed.
func (c *Coordinator) Resolve(ctx context.Context, loc Location, producers ...Producer) Decision {
	var recovery atomic.Bool
	if _, rec := Classify(loc); rec {
		return c.relay.SetPassword()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var navigating atomic.Bool
	decided := make(chan Decision, 1)
	commit := func(d Decision) {
		if navigating.CompareAndSwap(false, true) {
			decided <- d
		}
	}

	var wg sync.WaitGroup
	for _, p := range producers {
		wg.Add(1)
		go func(p Producer) {
			defer wg.Done()
			ev, err := p(ctx)
			if err != nil || ev == nil || ev.UserID == "" {
				if err != nil {
					c.relay.log.DebugContext(ctx, "session producer found no session", "err", err)
				}
				return
			}
			if ev.Recovery {
				recovery.Store(true)
				commit(c.relay.SetPassword())
				return
			}
			d := c.relay.Decide(ctx, loc, ev.UserID, ev.Tokens)
			if recovery.Load() {
				return
			}
			commit(d)
		}(p)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case d := <-decided:
		return d
	case <-done:
		select {
		case d := <-decided:
			return d
		default:
		}
		if ctx.Err() != nil {
			return c.fallback(loc, &navigating)
		}
		return Decision{Action: ActionSignIn, URL: c.relay.dest.SignIn}
	case <-ctx.Done():
		return c.fallback(loc, &navigating)
	}
}

func (c *Coordinator) fallback(loc Location, navigating *atomic.Bool) Decision {
	// Anything committed after this point is discarded.
	navigating.Store(true)
	return Decision{Action: ActionFallback, URL: c.relay.Manual(loc)}
}

// TokenVerifier resolves an access token to the identity it was issued for.
type TokenVerifier func(token string) (userID string, err error)

// FragmentSession reports the session an identity provider delivered in the
// callback fragment, if any.
func FragmentSession(loc Location, verify TokenVerifier) Producer {
	return func(context.Context) (*SessionEvent, error) {
		v := values(loc.Fragment)
		access := v.Get("access_token")
		if access == "" {
			return nil, nil
		}
		userID, err := verify(access)
		if err != nil {
			return nil, err
		}
		return &SessionEvent{
			UserID:   userID,
			Tokens:   &Tokens{AccessToken: access, RefreshToken: v.Get("refresh_token")},
			Recovery: recoveryTypes[v.Get("type")],
		}, nil
	}
}
