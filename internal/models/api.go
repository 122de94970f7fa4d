package models

// APIStatus represents the status of an admin API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusSent indicates an outbound message was dispatched.
	APIStatusSent APIStatus = "sent"
)

// APIResponse represents a standard admin API response.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// Sent creates a response acknowledging an outbound send.
func Sent(message string) APIResponse {
	return APIResponse{Status: string(APIStatusSent), Message: message}
}
