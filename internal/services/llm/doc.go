// Package llm provides a chat-completions client for OpenAI-compatible
// gateways (Lovable AI gateway, OpenRouter) plus the request, error and JSON
// helpers shared by every analysis backend.
//
// # Requests
//
// A Request carries a system prompt, a user prompt and any number of images
// as data URLs. Images are sent as image_url content parts on the user
// message.
//
// # Errors
//
// Non-2xx replies surface as *StatusError with the parsed Retry-After hint.
// A 2xx reply without content surfaces as *EmptyContentError. The client
// never retries; see package retry.
//
// # JSON
//
// DecodeLLMJSON tolerates code fences and surrounding prose.
package llm
