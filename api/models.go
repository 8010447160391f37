package api

import (
	"encoding/json"

	sfapi "github.com/Sakib25800/framer-salesforce-api"
)

// CreateWebFormRequest is the body of POST /api/web/create.
type CreateWebFormRequest struct {
	ObjectName string `json:"objectName"`
}

// CreateWebFormResponse carries the public webhook URL of a new form.
type CreateWebFormResponse struct {
	Webhook string `json:"webhook"`
}

// ListWebFormsResponse is the body of GET /api/web/forms.
type ListWebFormsResponse struct {
	Forms []sfapi.WebForm `json:"forms"`
}

// SuccessResponse acknowledges an operation with no other result.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorBody describes a failed request. Code is the error kind and Errors
// the provider's raw error array, when there is one.
type ErrorBody struct {
	Message string          `json:"message"`
	Code    string          `json:"code,omitempty"`
	Errors  json.RawMessage `json:"errors,omitempty"`
}

// ErrorResponse wraps ErrorBody as {"error": {...}}.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
