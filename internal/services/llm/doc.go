// Package llm provides an OpenAI-compatible chat client used to turn OCR text
// into structured patient records.
//
// The transport is github.com/sashabaranov/go-openai pointed at any
// compatible base URL (the default is the Gemini OpenAI endpoint).
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Complete: send system/user prompts, receive the raw text answer.
// Client.CompleteJSON: same, but requests a JSON object response.
// Client.HealthCheck: verify API key and model availability.
// DecodeLLMJSON: decode JSON that may be wrapped in code fences or prose.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty answers, and network
// timeouts with exponential backoff (base 1s, max 10s, up to 3 attempts by
// default). Context cancellation aborts retries immediately.
package llm
