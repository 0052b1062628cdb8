package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/d9705996/protestpro/internal/api/handler"
	"github.com/d9705996/protestpro/internal/apperr"
	"github.com/d9705996/protestpro/internal/documents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	got []documents.Request
	err error
}

func (g *stubGenerator) Generate(_ context.Context, req documents.Request) (*documents.Result, error) {
	g.got = append(g.got, req)
	if g.err != nil {
		return nil, g.err
	}
	return &documents.Result{Filename: "Form50162-Doe-Jane.pdf", DocumentID: "doc-1", IsExisting: true}, nil
}

// admins grants every action to the listed identities.
type admins map[string]bool

func (a admins) Require(_ context.Context, userID, _, _ string) error {
	if !a[userID] {
		return apperr.Forbidden("administrator standing required")
	}
	return nil
}

func TestGenerate_Self(t *testing.T) {
	gen := &stubGenerator{}
	h := handler.NewDocumentsHandler(gen, admins{}, discard())

	w := serve(t, h.Generate, "cust", map[string]string{"propertyId": "prop-1"})
	require.Equal(t, http.StatusOK, w.Code)
	var attrs struct {
		Success    bool   `json:"success"`
		Filename   string `json:"filename"`
		IsExisting bool   `json:"isExisting"`
	}
	attributes(t, w, &attrs)
	assert.True(t, attrs.Success)
	assert.True(t, attrs.IsExisting)
	assert.Equal(t, "Form50162-Doe-Jane.pdf", attrs.Filename)
	assert.Equal(t, []documents.Request{{UserID: "cust", PropertyID: "prop-1"}}, gen.got)
}

func TestGenerate_ForAnotherIdentity(t *testing.T) {
	gen := &stubGenerator{}
	h := handler.NewDocumentsHandler(gen, admins{"boss": true}, discard())
	body := map[string]string{"identityId": "cust", "propertyId": "prop-1", "documentType": "services_agreement"}

	w := serve(t, h.Generate, "other", body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, gen.got)

	w = serve(t, h.Generate, "boss", body)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, gen.got, 1)
	assert.Equal(t, "cust", gen.got[0].UserID)
	assert.Equal(t, "services_agreement", gen.got[0].DocumentType)
}

func TestGenerate_ErrorKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.Validation(apperr.CodeMissingField, "identity id and property id are required"), http.StatusBadRequest, "missing_field"},
		{apperr.NotFound("property_not_found", "property not found"), http.StatusNotFound, "property_not_found"},
		{apperr.Config("template_missing", "template missing", nil), http.StatusInternalServerError, "template_missing"},
		{apperr.FromContext("fetch template", context.DeadlineExceeded), http.StatusServiceUnavailable, apperr.CodeTimeout},
	}
	for _, tc := range cases {
		h := handler.NewDocumentsHandler(&stubGenerator{err: tc.err}, admins{}, discard())
		w := serve(t, h.Generate, "cust", map[string]string{"propertyId": "prop-1"})
		assert.Equal(t, tc.status, w.Code, tc.code)
		assert.Equal(t, tc.code, errorCode(t, w))
	}
}
