package apperr_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/d9705996/protestpro/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestKindOf_WrappedChain(t *testing.T) {
	base := apperr.Validation(apperr.CodeMissingPlaceID, "enter a valid address")
	err := fmt.Errorf("submit: %w", base)

	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeMissingPlaceID, e.Code)
}

func TestKindOf_Untagged(t *testing.T) {
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(errors.New("boom")))
}

func TestFromContext_Deadline(t *testing.T) {
	err := apperr.FromContext("download template", context.DeadlineExceeded)
	assert.True(t, apperr.Retryable(err))
	e, _ := apperr.As(err)
	assert.Equal(t, apperr.CodeTimeout, e.Code)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFromContext_KeepsTaggedError(t *testing.T) {
	tagged := apperr.NotFound("profile_not_found", "profile not found")
	assert.Same(t, tagged, apperr.FromContext("lookup", tagged))
}

func TestFromDB(t *testing.T) {
	assert.Nil(t, apperr.FromDB("op", nil))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(apperr.FromDB("op", gorm.ErrRecordNotFound)))
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(apperr.FromDB("op", gorm.ErrDuplicatedKey)))
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(apperr.FromDB("op", errors.New("disk full"))))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[apperr.Kind]int{
		apperr.KindValidation:   http.StatusBadRequest,
		apperr.KindNotFound:     http.StatusNotFound,
		apperr.KindConflict:     http.StatusConflict,
		apperr.KindUnauthorized: http.StatusUnauthorized,
		apperr.KindForbidden:    http.StatusForbidden,
		apperr.KindUnavailable:  http.StatusServiceUnavailable,
		apperr.KindConfig:       http.StatusInternalServerError,
		apperr.KindInternal:     http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, apperr.HTTPStatus(kind), kind)
	}
}
