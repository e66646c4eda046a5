package api

import "fmt"

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	// CurrentVersion is set on version conflicts.
	CurrentVersion string `json:"currentVersion,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloudsync api error: code=%s, message=%s", e.Code, e.Message)
}
