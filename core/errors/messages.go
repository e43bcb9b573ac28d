package errors

// ErrorMessages holds standardized, user-facing error message text.
var ErrorMessages = struct {
	InvalidRequestFormat string
	ValidationFailed     string
	InvalidID            string

	SubredditNotFound  string
	PostNotFound       string
	PostNotEligible    string
	DonationNotFound   string
	TaskNotFound       string
	ProductNotFound    string
	MissingSignature   string
	InvalidSignature   string
	UpstreamUnavailable string
}{
	InvalidRequestFormat: "invalid request format",
	ValidationFailed:     "validation failed",
	InvalidID:            "invalid id",

	SubredditNotFound:   "subreddit not found",
	PostNotFound:        "post not found",
	PostNotEligible:     "post is not eligible for commission",
	DonationNotFound:    "donation not found",
	TaskNotFound:        "task not found",
	ProductNotFound:     "product not found",
	MissingSignature:    "missing webhook signature",
	InvalidSignature:    "invalid webhook signature",
	UpstreamUnavailable: "upstream service unavailable",
}

// ErrorResponse creates a standardized error response map.
func ErrorResponse(message string, details ...string) map[string]interface{} {
	response := map[string]interface{}{
		"error": message,
	}
	if len(details) > 0 && details[0] != "" {
		response["details"] = details[0]
	}
	return response
}

// ValidationErrorResponse creates a validation error response.
func ValidationErrorResponse(details string) map[string]interface{} {
	return ErrorResponse(ErrorMessages.ValidationFailed, details)
}

// InvalidRequestResponse creates an invalid request error response.
func InvalidRequestResponse(details string) map[string]interface{} {
	return ErrorResponse(ErrorMessages.InvalidRequestFormat, details)
}
