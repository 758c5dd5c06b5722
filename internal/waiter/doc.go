// Package waiter implements the obstacle-aware wait engine.
//
// WaitFor polls for a primary template under a hard deadline measured from the
// call. Between polls it checks an ordered table of obstacles; the first one
// found has its handler run, then polling resumes without resetting the
// deadline. WaitWithRescue layers rescue escalation on top for targets known
// to freeze: bounded attempts with a wake click before each, and a forced
// window-close plus settle period between passes.
//
// Waits are deliberately not preempted by context cancellation. A stop
// request lets the current bounded wait run out; the caller's next
// interruptible sleep or step boundary observes the cancellation.
package waiter
