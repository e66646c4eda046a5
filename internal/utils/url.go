package utils

import (
	"errors"
	"net/url"
)

var ErrInvalidURL = errors.New("url must be absolute http(s)")

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
