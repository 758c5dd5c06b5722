// Package backend is the HTTP client for the coordinating backend.
//
// The node registers itself on startup, refreshes its assignment and target
// list at the top of every cycle, sends a liveness heartbeat, ingests the
// structured results of each extraction stage, and reports failures together
// with a screenshot link. Every non-2xx response or transport failure is
// returned tagged with services.ErrNetwork; callers decide whether it is fatal.
package backend
