package ui_test

import (
	"io/fs"
	"testing"

	"github.com/d9705996/protestpro/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackPage_FallbackWithinTenSeconds(t *testing.T) {
	b, err := fs.ReadFile(ui.FS, "pages/callback.html")
	require.NoError(t, err)
	assert.Contains(t, string(b), `setTimeout(function () { fallback(""); }, 10000);`)
}

func TestPages_ForwardRefreshToken(t *testing.T) {
	for _, name := range []string{"pages/callback.html", "pages/set-password.html"} {
		b, err := fs.ReadFile(ui.FS, name)
		require.NoError(t, err)
		assert.Contains(t, string(b), "refreshToken: refresh", name)
	}
}
