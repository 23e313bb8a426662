package types

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains detailed error information.
type ErrorDetail struct {
	// Message is a human-readable error message.
	Message string `json:"message"`

	// Type categorizes the error. See the ErrorType constants.
	Type string `json:"type"`

	// Param names the request field that caused the error, if any.
	Param string `json:"param,omitempty"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`

	// Details lists individual problems, e.g. one entry per rejected fact
	// attribute.
	Details []string `json:"details,omitempty"`
}

// Error types.
const (
	ErrorTypeInvalidRequest     = "invalid_request_error" // 400
	ErrorTypeNotFound           = "not_found"             // 404
	ErrorTypeMethodNotAllowed   = "method_not_allowed"    // 405
	ErrorTypeInvalidFact        = "invalid_fact"          // 422
	ErrorTypeEvaluation         = "evaluation_error"      // 500
	ErrorTypeServerError        = "server_error"          // 500
	ErrorTypeServiceUnavailable = "service_unavailable"   // 503
)

// Error codes.
const (
	CodeMissingField    = "missing_field"
	CodeInvalidValue    = "invalid_value"
	CodeInvalidJSON     = "invalid_json"
	CodeBodyTooLarge    = "body_too_large"
	CodeUnknownCategory = "unknown_category"
	CodeNoSnapshot      = "no_snapshot"
	CodeReloadFailed    = "reload_failed"
)

// NewErrorResponse creates an error response.
func NewErrorResponse(message, errorType, param, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Param:   param,
			Code:    code,
		},
	}
}

// NewInvalidRequestError creates a 400 error response.
func NewInvalidRequestError(message, param, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeInvalidRequest, param, code)
}

// NewServerError creates a 500 error response.
func NewServerError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeServerError, "", "")
}

// WithDetails attaches individual problems to the response.
func (e *ErrorResponse) WithDetails(details ...string) *ErrorResponse {
	e.Error.Details = append(e.Error.Details, details...)
	return e
}
