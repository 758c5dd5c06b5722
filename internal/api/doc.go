// Package api defines the wire-format types served by the node's local
// status API and the HTTP client the CLI uses to read them.
//
// # Key Types
//
// NodeStatus: daemon running state, node identity, the published flow
// snapshot, the orchestrator cycle state, stage health, and dependencies.
//
// Run: transport representation of a journaled flow run.
//
// InterruptResponse: result of a stop request against the active flow.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps are RFC3339 with milliseconds and
// omitted when zero. Durations are rendered in whole seconds so shell
// consumers need not parse Go duration strings.
package api
