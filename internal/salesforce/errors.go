package salesforce

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMisconfigured     = errors.New("salesforce client is misconfigured")
	ErrMalformedResponse = errors.New("malformed response from salesforce")
)

// ResponseError is a non-2xx provider response kept verbatim so handlers
// can pass it through to the caller.
type ResponseError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func newResponseError(resp *http.Response, body []byte) *ResponseError {
	return &ResponseError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       body,
	}
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("salesforce responded %s: %s", e.Status, e.Body)
}

// StatusText returns the reason phrase without the numeric code.
func (e *ResponseError) StatusText() string {
	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}

	return e.Status
}

// AsResponseError returns the first ResponseError in err's chain.
func AsResponseError(err error) (*ResponseError, bool) {
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return respErr, true
	}

	return nil, false
}
