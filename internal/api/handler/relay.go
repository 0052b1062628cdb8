package handler

import (
	"context"
	"net/http"

	"github.com/d9705996/protestpro/internal/api/jsonapi"
	"github.com/d9705996/protestpro/internal/api/middleware"
	"github.com/d9705996/protestpro/internal/auth"
	"github.com/d9705996/protestpro/internal/relay"
)

// RelayHandler handles POST /api/v1/auth/relay, called by the callback page
// with the location it was opened at.
type RelayHandler struct {
	coord  *relay.Coordinator
	secret string
}

// NewRelayHandler creates a RelayHandler. secret verifies fragment tokens.
func NewRelayHandler(coord *relay.Coordinator, secret string) *RelayHandler {
	return &RelayHandler{coord: coord, secret: secret}
}

func (h *RelayHandler) verify(token string) (string, error) {
	c, err := auth.ParseAccessToken(token, h.secret)
	if err != nil {
		return "", err
	}
	return c.UserID(), nil
}

// relayRequest is the callback location plus the refresh token that belongs
// to the bearer session, if the page holds one.
type relayRequest struct {
	relay.Location
	RefreshToken string `json:"refreshToken"`
}

// Relay races the bearer session against the fragment session and renders
// the single navigation decision.
func (h *RelayHandler) Relay(w http.ResponseWriter, r *http.Request) {
	var req relayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	loc := req.Location
	ctx := r.Context()

	producers := []relay.Producer{relay.FragmentSession(loc, h.verify)}
	if claims := middleware.ClaimsFromContext(ctx); claims != nil {
		token := middleware.TokenFromContext(ctx)
		producers = append(producers, func(context.Context) (*relay.SessionEvent, error) {
			return &relay.SessionEvent{UserID: claims.UserID(), Tokens: &relay.Tokens{
				AccessToken:  token,
				RefreshToken: req.RefreshToken,
			}}, nil
		})
	}

	d := h.coord.Resolve(ctx, loc, producers...)
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "relay_decisions",
		ID:         string(d.Action),
		Attributes: d,
	})
}
