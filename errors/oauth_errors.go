package errors

import (
	"encoding/json"
	"fmt"
)

// OAuth2Error represents a standardized OAuth 2.0 error body as returned by
// the identity provider's token and revoke endpoints.
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// ParseOAuth2Error decodes a provider error body. It returns nil when the body
// is not an OAuth2 error document.
func ParseOAuth2Error(body []byte) *OAuth2Error {
	var oauthErr OAuth2Error
	if err := json.Unmarshal(body, &oauthErr); err != nil || oauthErr.Code == "" {
		return nil
	}

	return &oauthErr
}

// Message returns the most descriptive text available.
func (e *OAuth2Error) Message() string {
	if e.Description != "" {
		return e.Description
	}

	return e.Code
}
