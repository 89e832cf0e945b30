package llm

// ErrorResponse is the JSON error body returned to callers.
type ErrorResponse struct {
	Error string `json:"error"`
}
