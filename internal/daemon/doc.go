// Package daemon coordinates the long-running extraction node process.
//
// It holds the flock-based single-instance lock, runs the extraction loop in
// a background goroutine, and serves the local status API. Shutdown cancels
// the loop, interrupts the active flow, and waits for the loop to return
// before releasing the lock.
//
// Keep orchestration logic here: hospital flows live in their own packages
// while the daemon focuses on startup, shutdown, and high level coordination.
package daemon
