// Package screenctl drives the remote desktop through an external helper
// binary that performs template matching and synthetic input.
//
// Every operation is one helper invocation: `<binary> <verb> [args]`. Locate
// and size answer with a JSON object on stdout, screenshot writes PNG bytes,
// paste reads the text from stdin so secrets never appear in argv. Each call
// runs under its own timeout.
//
// Prefer this package over ad-hoc exec.Command usage so timeouts, error
// classification, and logging stay consistent across flows.
package screenctl
