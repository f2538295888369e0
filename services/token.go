package services

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// tokenBytes is the entropy of a tracking token (32 hex chars).
const tokenBytes = 16

func generateTrackingToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate tracking token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// buildTrackingURL appends the token to target, keeping any existing query.
func buildTrackingURL(target, param, token string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return "", fmt.Errorf("parse target url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("target url %q is not an absolute http(s) url", target)
	}
	q := u.Query()
	q.Set(param, token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
