// Package ui embeds the static pages served by the backend itself: the
// sign-in callback that relays a session to the right application and the
// set-password page that finishes invite and recovery links.
package ui

import "embed"

// FS holds the embedded pages under pages/.
//
//go:embed pages
var FS embed.FS
