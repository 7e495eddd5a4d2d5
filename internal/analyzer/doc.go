// Package analyzer is the remote analysis function: it forwards a chunk's
// frames and a fixed prompt to a multimodal model and normalizes the JSON
// reply into a stats.Analysis.
//
// Three backends are available (OpenAI-compatible gateway, Gemini, OpenAI).
// Provider failures are mapped to *Error values whose Message is safe to show
// to users; HTTPStatus and PublicMessage translate them for the HTTP API.
package analyzer
