package apierror

import "fmt"

type APIError struct {
	Code       string  `json:"code"`
	Message    string  `json:"message"`
	Details    string  `json:"details,omitempty"`
	Fields     []Field `json:"fields,omitempty"`
	HTTPStatus int     `json:"-"`
}

// Field is a single field-level validation message.
type Field struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code string, message string, details string, status int) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: status}
}

func NewValidation(message string, fields []Field) *APIError {
	return &APIError{Code: "INVALID_FORMAT", Message: message, Fields: fields, HTTPStatus: 400}
}
