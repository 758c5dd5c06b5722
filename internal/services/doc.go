// Package services defines shared utilities consumed by the flows, the
// extraction orchestrator, and the external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp hospital types, stage names, flow names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap and Details helpers that classify
//     failures (detection timeout, injection, extraction, network) uniformly.
//
// Subpackages hold the concrete collaborators: the backend HTTP client, the
// screen driver, Vision OCR, and the LLM client.
package services
