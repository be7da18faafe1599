package helpers

import (
	"errors"
	"net/url"
	"strings"
)

var (
	ErrInvalidScheme = errors.New("invalid URL scheme")
	ErrEmptyHost     = errors.New("empty host")
)

// ValidateURL checks that rawURL is an absolute http(s) URL and returns it
// without a trailing slash.
func ValidateURL(rawURL string) (string, error) {
	validURL, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	if validURL.Scheme != "http" && validURL.Scheme != "https" {
		return "", ErrInvalidScheme
	}

	if validURL.Host == "" {
		return "", ErrEmptyHost
	}

	return strings.TrimRight(validURL.String(), "/"), nil
}

// JoinURL appends path to base, keeping exactly one slash between them.
func JoinURL(base string, path string) string {
	if path == "" {
		return base
	}

	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
