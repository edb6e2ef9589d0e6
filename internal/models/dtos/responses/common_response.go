package responses

import "time"

// APIResponse is the envelope every ops API route answers with
type APIResponse[T any] struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"requestId,omitempty"`
	Error     string    `json:"error,omitempty"`
	Data      *T        `json:"data,omitempty"`
}
