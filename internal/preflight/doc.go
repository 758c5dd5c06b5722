// Package preflight provides readiness checks for the collaborators and
// filesystem paths an extraction node depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failed check so the
//     operator sees a missing driver or key before the first cycle fails.
//   - The CLI "rpanode preflight" and "rpanode status" commands render the
//     same results as a table.
//
// Checks whose collaborator is not configured report a failure rather than
// being skipped; the node cannot extract without any of them.
package preflight
