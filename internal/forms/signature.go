package forms

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
)

var dataURLPrefix = regexp.MustCompile(`^data:image/[a-z]+;base64,`)

// DecodeSignature decodes a base64 image signature, with or without a
// data:image/...;base64, prefix.
func DecodeSignature(s string) ([]byte, error) {
	raw := dataURLPrefix.ReplaceAllString(s, "")
	if raw == "" {
		return nil, errors.New("empty signature")
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	return b, nil
}
