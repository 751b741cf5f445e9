// Package inference defines the provider wire contract and its two sides: the
// consumer client that POSTs work to a provider endpoint, and the
// OpenAI-compatible backend the provider forwards prompts to.
package inference

// Request is the body of POST /inference. Model is optional; when empty the
// provider serves its configured default model.
type Request struct {
	Prompt string `json:"prompt" binding:"required"`
	Model  string `json:"model,omitempty"`
}

// Response is the success body of POST /inference.
type Response struct {
	Result     string `json:"result"`
	Model      string `json:"model"`
	DurationMs int64  `json:"durationMs"`
	Provider   string `json:"provider"`
}

// ErrorResponse is the structured error body for 4xx/5xx replies.
type ErrorResponse struct {
	Error string `json:"error"`
}
