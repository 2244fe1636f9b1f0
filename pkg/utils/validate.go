package utils

import (
	"errors"
	"net/url"
	"strings"
)

var ErrInvalidURL = errors.New("must be an absolute http(s) URL")

// NormalizeHTTPURL trims raw and checks that it is an absolute http or https URL.
func NormalizeHTTPURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return "", ErrInvalidURL
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", ErrInvalidURL
	}
	return trimmed, nil
}
