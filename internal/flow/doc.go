// Package flow runs one desktop flow at a time through a fixed lifecycle:
// setup, keep-awake, modal watcher, execute, completion notice or error
// report, and an unconditional teardown.
//
// Runner.Run is the only entry point. A second Run while one is active is
// rejected with services.ErrFlowBusy rather than queued, because only one
// session can drive the desktop. Interrupt cancels the active run's context;
// settle sleeps and step boundaries observe it, in-flight waits finish their
// bounded timeout first.
//
// Failures come back as *Error, which records the failed step and whether the
// backend already received an error report so callers do not report twice.
package flow
