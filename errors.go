package sfapi

import (
	"errors"
	"regexp"

	apierrors "github.com/Sakib25800/framer-salesforce-api/errors"
)

var (
	ErrMissingAuthorization = errors.New("missing or invalid Authorization header")
	ErrHandlerNotAllowed    = errors.New("form handler host is not allowed")
)

var objectNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func validateObjectName(name string) error {
	if !objectNamePattern.MatchString(name) {
		return apierrors.NewBadRequest("invalid object name")
	}

	return nil
}
