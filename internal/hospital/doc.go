// Package hospital holds the closed set of hospital variants the node can
// extract from. Each variant implements the three extraction stages (patient
// list, batch summaries, batch insurance) as flows driven by flow.Runner, so
// every stage gets watcher supervision, sleep inhibition, error screenshots,
// and guaranteed teardown.
//
// Steward runs through a Horizon web client into Meditech and prints its
// census to PDF. Jackson and Baptist run a desktop EMR inside the VDI and
// read the census from a screenshot.
package hospital
